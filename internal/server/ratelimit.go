package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wedosoft/project-a/internal/config"
)

// Bucket classes. Standard covers most endpoints, heavy covers the
// LLM-bound ones, auth tracks authorization failures.
type bucketClass string

const (
	bucketStandard bucketClass = "standard"
	bucketHeavy    bucketClass = "heavy"
	bucketAuth     bucketClass = "auth"
)

// maxLimiterKeys triggers a sweep of idle entries.
const maxLimiterKeys = 10000

// limiterEntry is one token bucket plus its last use, for sweeping.
type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keys token buckets by (class, client ip, tenant id).
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry

	standard rate.Limit
	stdBurst int
	heavy    rate.Limit
	hvyBurst int
	auth     rate.Limit
	maxKeys  int
	now      func() time.Time
}

// NewLimiter builds a limiter from config, applying the documented defaults
// for unset fields.
func NewLimiter(cfg config.RateLimit) *Limiter {
	if cfg.StandardRPM <= 0 {
		cfg.StandardRPM = 100
	}
	if cfg.StandardBurst <= 0 {
		cfg.StandardBurst = 10
	}
	if cfg.HeavyRPM <= 0 {
		cfg.HeavyRPM = 20
	}
	if cfg.HeavyBurst <= 0 {
		cfg.HeavyBurst = 5
	}
	if cfg.AuthRPM <= 0 {
		cfg.AuthRPM = 5
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = maxLimiterKeys
	}
	perMinute := func(rpm int) rate.Limit { return rate.Limit(float64(rpm) / 60.0) }
	return &Limiter{
		entries:  make(map[string]*limiterEntry),
		standard: perMinute(cfg.StandardRPM),
		stdBurst: cfg.StandardBurst,
		heavy:    perMinute(cfg.HeavyRPM),
		hvyBurst: cfg.HeavyBurst,
		auth:     perMinute(cfg.AuthRPM),
		maxKeys:  cfg.MaxKeys,
		now:      time.Now,
	}
}

func (l *Limiter) entry(class bucketClass, ip, tenant string) *limiterEntry {
	key := string(class) + "|" + ip + "|" + tenant

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		var lim *rate.Limiter
		switch class {
		case bucketHeavy:
			lim = rate.NewLimiter(l.heavy, l.hvyBurst)
		case bucketAuth:
			// A short failure streak locks the key out until tokens refill.
			lim = rate.NewLimiter(l.auth, 5)
		default:
			lim = rate.NewLimiter(l.standard, l.stdBurst)
		}
		e = &limiterEntry{lim: lim}
		l.entries[key] = e
		if len(l.entries) > l.maxKeys {
			l.sweepLocked()
		}
	}
	e.lastSeen = l.now()
	return e
}

// Allow consumes one token from the class bucket for the caller.
func (l *Limiter) Allow(class bucketClass, ip, tenant string) bool {
	return l.entry(class, ip, tenant).lim.Allow()
}

// RecordAuthFailure consumes one token from the caller's auth bucket.
func (l *Limiter) RecordAuthFailure(ip, tenant string) {
	l.entry(bucketAuth, ip, tenant).lim.Allow()
}

// AuthBlocked reports whether the caller has burned through its auth-failure
// budget. Does not consume a token.
func (l *Limiter) AuthBlocked(ip, tenant string) bool {
	return l.entry(bucketAuth, ip, tenant).lim.Tokens() < 1
}

// sweepLocked drops the least recently used half of the entries. Caller
// holds the mutex.
func (l *Limiter) sweepLocked() {
	cutoff := l.now().Add(-time.Minute)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
	// Under sustained pressure from active keys, fall back to dropping
	// arbitrary entries to stay bounded.
	for key := range l.entries {
		if len(l.entries) <= l.maxKeys/2 {
			break
		}
		delete(l.entries, key)
	}
}
