package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// generateTestCertificate creates a self-signed certificate and key for testing
func generateTestCertificate(commonName string, validFor time.Duration) (certPEM, keyPEM []byte, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName: commonName,
		},
		Issuer:                pkix.Name{CommonName: commonName},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{commonName},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, err
	}

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})
	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return certPEM, keyPEM, nil
}

func writeTestCertificate(t *testing.T, dir, commonName string, mod time.Time) (string, string) {
	t.Helper()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	certPEM, keyPEM, err := generateTestCertificate(commonName, 48*time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test certificate: %v", err)
	}
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	return certFile, keyFile
}

func leafName(t *testing.T, r *CertReloader) string {
	t.Helper()
	cert, err := r.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse leaf: %v", err)
	}
	return leaf.Subject.CommonName
}

func TestLoadCertificate(t *testing.T) {
	tmpDir := t.TempDir()
	certFile, keyFile := writeTestCertificate(t, tmpDir, "localhost", time.Now())

	t.Run("valid certificate", func(t *testing.T) {
		cfg, err := LoadCertificate(certFile, keyFile)
		if err != nil {
			t.Fatalf("unexpected error loading valid certificate: %v", err)
		}
		if cfg.GetCertificate == nil {
			t.Error("expected GetCertificate callback")
		}
	})

	t.Run("non-existent cert file", func(t *testing.T) {
		_, err := LoadCertificate("/nonexistent/cert.pem", "/nonexistent/key.pem")
		if err == nil {
			t.Error("expected error for non-existent files")
		}
	})

	t.Run("invalid cert", func(t *testing.T) {
		invalidCert := filepath.Join(tmpDir, "invalid.pem")
		if err := os.WriteFile(invalidCert, []byte("invalid"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadCertificate(invalidCert, keyFile)
		if err == nil {
			t.Error("expected error for invalid certificate")
		}
	})
}

func TestCertReloader(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	certFile, keyFile := writeTestCertificate(t, dir, "old.example.com", base)

	r, err := NewCertReloader(certFile, keyFile, time.Minute)
	if err != nil {
		t.Fatalf("NewCertReloader() error = %v", err)
	}
	clock := time.Now()
	r.now = func() time.Time { return clock }
	r.lastChecked = clock

	if got := leafName(t, r); got != "old.example.com" {
		t.Fatalf("initial CN = %q", got)
	}

	writeTestCertificate(t, dir, "new.example.com", base.Add(time.Minute))

	if got := leafName(t, r); got != "old.example.com" {
		t.Errorf("CN before interval = %q, want old.example.com", got)
	}

	clock = clock.Add(2 * time.Minute)
	if got := leafName(t, r); got != "new.example.com" {
		t.Errorf("CN after interval = %q, want new.example.com", got)
	}

	// A broken replacement keeps the last good certificate
	if err := os.WriteFile(certFile, []byte("broken"), 0644); err != nil {
		t.Fatal(err)
	}
	later := base.Add(2 * time.Minute)
	os.Chtimes(certFile, later, later)
	clock = clock.Add(2 * time.Minute)
	if got := leafName(t, r); got != "new.example.com" {
		t.Errorf("CN after broken reload = %q, want new.example.com", got)
	}
}

func TestGetCertificateInfo(t *testing.T) {
	certFile, _ := writeTestCertificate(t, t.TempDir(), "phonebook.local", time.Now())

	info, err := GetCertificateInfo(certFile)
	if err != nil {
		t.Fatalf("GetCertificateInfo() error = %v", err)
	}
	if info.Subject != "phonebook.local" {
		t.Errorf("Subject = %q", info.Subject)
	}
	if info.DaysLeft != 1 {
		t.Errorf("DaysLeft = %d, want 1", info.DaysLeft)
	}
	if len(info.DNSNames) != 1 || info.DNSNames[0] != "phonebook.local" {
		t.Errorf("DNSNames = %v", info.DNSNames)
	}

	if _, err := GetCertificateInfo(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("expected error for missing file")
	}
}
