package ratelimit

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) (*bolt.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db, dbPath
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, db *bolt.DB, cfg *Config) (*Limiter, *fakeClock) {
	t.Helper()
	limiter, err := NewLimiter(db, cfg)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	t.Cleanup(func() { limiter.Stop() })

	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	limiter.now = clock.now
	return limiter, clock
}

func TestNewLimiterDefaultConfig(t *testing.T) {
	db, _ := setupTestDB(t)

	limiter, _ := newTestLimiter(t, db, nil)
	if limiter.config.FlushInterval != 10*time.Second {
		t.Errorf("expected default FlushInterval=10s, got %v", limiter.config.FlushInterval)
	}
	if r := limiter.Check(Request{IP: "10.0.0.1", Email: "a@b.c"}); !r.Allowed {
		t.Error("limiter without limits should allow everything")
	}
}

func TestPerIPHourlyLimit(t *testing.T) {
	db, _ := setupTestDB(t)
	limiter, clock := newTestLimiter(t, db, &Config{
		PerIP: &LimitConfig{FailuresPerHour: 3},
	})

	req := Request{IP: "10.0.0.1"}
	for i := 0; i < 3; i++ {
		if r := limiter.Check(req); !r.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		limiter.RecordFailure(req)
	}

	r := limiter.Check(req)
	if r.Allowed {
		t.Fatal("4th attempt should be denied")
	}
	if r.DeniedBy != LevelIP || r.DeniedKey != "ip:10.0.0.1" {
		t.Errorf("denied by %s/%s", r.DeniedBy, r.DeniedKey)
	}
	if r.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", r.RetryAfter)
	}

	if r := limiter.Check(Request{IP: "10.0.0.2"}); !r.Allowed {
		t.Error("other IP should be allowed")
	}

	clock.advance(time.Hour)
	if r := limiter.Check(req); !r.Allowed {
		t.Error("attempt after the hour window should be allowed")
	}
}

func TestPerEmailDailyLimitAndReset(t *testing.T) {
	db, _ := setupTestDB(t)
	limiter, clock := newTestLimiter(t, db, &Config{
		PerEmail: &LimitConfig{FailuresPerDay: 2},
	})

	limiter.RecordFailure(Request{Email: "Admin@Empresa.com"})
	clock.advance(2 * time.Hour)
	limiter.RecordFailure(Request{Email: "admin@empresa.com "})

	r := limiter.Check(Request{IP: "10.0.0.9", Email: "ADMIN@empresa.com"})
	if r.Allowed || r.DeniedBy != LevelEmail {
		t.Fatalf("expected email denial, got %+v", r)
	}
	if r.RetryAfter != 22*time.Hour {
		t.Errorf("RetryAfter = %v, want 22h", r.RetryAfter)
	}

	limiter.Reset("admin@empresa.com")
	if r := limiter.Check(Request{Email: "admin@empresa.com"}); !r.Allowed {
		t.Error("attempt after Reset should be allowed")
	}
}

func TestGlobalLimit(t *testing.T) {
	db, _ := setupTestDB(t)
	limiter, _ := newTestLimiter(t, db, &Config{
		Global: &LimitConfig{FailuresPerHour: 2},
	})

	limiter.RecordFailure(Request{IP: "10.0.0.1"})
	limiter.RecordFailure(Request{IP: "10.0.0.2"})

	if r := limiter.Check(Request{IP: "10.0.0.3"}); r.Allowed || r.DeniedBy != LevelGlobal {
		t.Errorf("expected global denial, got %+v", r)
	}
}

func TestPersistence(t *testing.T) {
	db, _ := setupTestDB(t)
	cfg := &Config{PerIP: &LimitConfig{FailuresPerHour: 1}, FlushInterval: time.Hour}

	limiter, err := NewLimiter(db, cfg)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	limiter.RecordFailure(Request{IP: "10.0.0.1"})
	if err := limiter.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	reloaded, err := NewLimiter(db, cfg)
	if err != nil {
		t.Fatalf("failed to reload limiter: %v", err)
	}
	defer reloaded.Stop()

	if r := reloaded.Check(Request{IP: "10.0.0.1"}); r.Allowed {
		t.Error("persisted counter should deny after reload")
	}
}

func TestStopTwice(t *testing.T) {
	db, _ := setupTestDB(t)
	limiter, err := NewLimiter(db, nil)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	if err := limiter.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := limiter.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestExpiredCountersPruned(t *testing.T) {
	db, _ := setupTestDB(t)
	limiter, clock := newTestLimiter(t, db, &Config{PerEmail: &LimitConfig{FailuresPerDay: 5}})

	limiter.RecordFailure(Request{Email: "admin@empresa.com"})
	clock.advance(25 * time.Hour)
	if err := limiter.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	var keys int
	db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLoginLimits).ForEach(func(k, v []byte) error {
			keys++
			return nil
		})
	})
	if keys != 0 {
		t.Errorf("persisted %d counters, want 0", keys)
	}
}
