// Package ratelimit throttles failed admin logins with hourly and daily
// counters persisted in bbolt.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketLoginLimits = []byte("login_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal Level = "global"
	LevelIP     Level = "ip"
	LevelEmail  Level = "email"
)

// Config contains rate limit configuration
type Config struct {
	// Global limits across all clients
	Global *LimitConfig `yaml:"global,omitempty"`

	// Limits per client IP
	PerIP *LimitConfig `yaml:"per_ip,omitempty"`

	// Limits per login email
	PerEmail *LimitConfig `yaml:"per_email,omitempty"`

	// Persistence settings
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains rate limit values. Zero means unlimited.
type LimitConfig struct {
	FailuresPerHour int `yaml:"failures_per_hour" json:"failures_per_hour"`
	FailuresPerDay  int `yaml:"failures_per_day" json:"failures_per_day"`
}

// Counter holds the failures seen in the current hour and day windows
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// rolled returns the counter with expired windows restarted at now
func (c Counter) rolled(now time.Time) Counter {
	if now.Sub(c.HourStart) >= time.Hour {
		c.HourlyCount = 0
		c.HourStart = now
	}
	if now.Sub(c.DayStart) >= 24*time.Hour {
		c.DailyCount = 0
		c.DayStart = now
	}
	return c
}

// retryAfter reports how long until the counter drops below limit
func (c Counter) retryAfter(limit *LimitConfig, now time.Time) (time.Duration, bool) {
	if limit.FailuresPerHour > 0 && c.HourlyCount >= limit.FailuresPerHour {
		return c.HourStart.Add(time.Hour).Sub(now), true
	}
	if limit.FailuresPerDay > 0 && c.DailyCount >= limit.FailuresPerDay {
		return c.DayStart.Add(24 * time.Hour).Sub(now), true
	}
	return 0, false
}

func (c Counter) expired(now time.Time) bool {
	return now.Sub(c.DayStart) >= 24*time.Hour
}

// Limiter counts failed logins at several levels
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter // key -> counter
	dirty    bool
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewLimiter creates a new rate limiter
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	// Create bucket if not exists
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLoginLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	// Load persisted counters
	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	// Start background persistence
	go l.persistLoop()

	return l, nil
}

// Request identifies a login attempt
type Request struct {
	IP    string // Client IP
	Email string // Login email, matched case-insensitively
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Check reports whether another attempt is allowed without counting it
func (l *Limiter) Check(req Request) Result {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	for _, check := range l.getChecks(req) {
		counter, exists := l.counters[check.key]
		if !exists {
			continue
		}
		if wait, denied := counter.rolled(now).retryAfter(check.limit, now); denied {
			return Result{DeniedBy: check.level, DeniedKey: check.key, RetryAfter: wait}
		}
	}

	return Result{Allowed: true}
}

// RecordFailure counts a failed attempt at every applicable level
func (l *Limiter) RecordFailure(req Request) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, check := range l.getChecks(req) {
		counter, exists := l.counters[check.key]
		if !exists {
			counter = &Counter{HourStart: now, DayStart: now}
			l.counters[check.key] = counter
		}
		*counter = counter.rolled(now)
		counter.HourlyCount++
		counter.DailyCount++
	}
	l.dirty = true
}

// Reset clears the per-email counter after a successful login
func (l *Limiter) Reset(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := makeKey(LevelEmail, normalizeEmail(email))
	if _, ok := l.counters[key]; ok {
		delete(l.counters, key)
		l.dirty = true
	}
}

// Stop stops the rate limiter and persists counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return l.persistCounters()
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(req Request) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if req.IP != "" && l.config.PerIP != nil {
		checks = append(checks, limitCheck{
			level: LevelIP,
			key:   makeKey(LevelIP, req.IP),
			limit: l.config.PerIP,
		})
	}

	if email := normalizeEmail(req.Email); email != "" && l.config.PerEmail != nil {
		checks = append(checks, limitCheck{
			level: LevelEmail,
			key:   makeKey(LevelEmail, email),
			limit: l.config.PerEmail,
		})
	}

	return checks
}

func (l *Limiter) loadCounters() error {
	now := l.now()
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketLoginLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil || counter.expired(now) {
				return nil
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

// persistCounters rewrites the bucket so reset counters disappear too
func (l *Limiter) persistCounters() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, counter := range l.counters {
		if counter.expired(now) {
			delete(l.counters, key)
			l.dirty = true
		}
	}
	if !l.dirty {
		return nil
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketLoginLimits) != nil {
			if err := tx.DeleteBucket(bucketLoginLimits); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(bucketLoginLimits)
		if err != nil {
			return err
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		l.dirty = false
	}
	return err
}

func (l *Limiter) persistLoop() {
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
