// Package tls loads the API server certificate and picks up renewed
// certificate files without a restart.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultCheckInterval is how often the certificate files are re-stat'ed
const DefaultCheckInterval = time.Minute

// CertReloader serves a key pair from disk and reloads it when either
// file's modification time changes
type CertReloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	cert        *tls.Certificate
	certMod     time.Time
	keyMod      time.Time
	lastChecked time.Time
}

// NewCertReloader loads the key pair once and fails if it is invalid
func NewCertReloader(certFile, keyFile string, interval time.Duration) (*CertReloader, error) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		now:      time.Now,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func modTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// load must be called with mu held or before the reloader is shared
func (r *CertReloader) load() error {
	certMod, err := modTime(r.certFile)
	if err != nil {
		return fmt.Errorf("failed to stat TLS certificate: %w", err)
	}
	keyMod, err := modTime(r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to stat TLS key: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	r.cert = &cert
	r.certMod = certMod
	r.keyMod = keyMod
	r.lastChecked = r.now()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate. A failed reload
// keeps serving the previous certificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastChecked) < r.interval {
		return r.cert, nil
	}
	r.lastChecked = now

	certMod, certErr := modTime(r.certFile)
	keyMod, keyErr := modTime(r.keyFile)
	if certErr != nil || keyErr != nil {
		return r.cert, nil
	}
	if certMod.Equal(r.certMod) && keyMod.Equal(r.keyMod) {
		return r.cert, nil
	}

	_ = r.load()
	return r.cert, nil
}

// LoadCertificate builds a server TLS configuration backed by a reloader
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	r, err := NewCertReloader(certFile, keyFile, DefaultCheckInterval)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}, nil
}

// CertificateInfo describes a certificate file
type CertificateInfo struct {
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

// GetCertificateInfo reads the first certificate of a PEM file
func GetCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertificateInfo{
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(time.Until(cert.NotAfter).Hours() / 24),
		DNSNames:  cert.DNSNames,
	}, nil
}
