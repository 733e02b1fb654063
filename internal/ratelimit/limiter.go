// Package ratelimit throttles inbound conversation messages per contact.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	BurstWindow time.Duration // Window for burst detection (default: 10s)
	BurstMax    int           // Max messages per contact per burst window (default: 5)
	MaxPerHour  int           // Max messages per contact per hour (default: 120)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		BurstWindow: 10 * time.Second,
		BurstMax:    5,
		MaxPerHour:  120,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps.
type entry struct {
	burstCount   int
	burstFirstAt time.Time
	hourCount    int
	hourFirstAt  time.Time
	lastAt       time.Time
}

// Limiter caps how fast a single contact can message a tenant. Keys combine
// tenant and contact so one tenant's chatty user never throttles another's.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	byKey  map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byKey:         make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow checks and records one inbound message in a single step.
func (l *Limiter) Allow(tenantID, contact string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := l.hashKey(tenantID, normalizeContact(contact))

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.byKey[key]
	if e == nil {
		l.byKey[key] = &entry{
			burstCount:   1,
			burstFirstAt: now,
			hourCount:    1,
			hourFirstAt:  now,
			lastAt:       now,
		}
		return LimitResult{Allowed: true}
	}

	if now.Sub(e.burstFirstAt) >= l.config.BurstWindow {
		e.burstCount = 0
		e.burstFirstAt = now
	}
	if now.Sub(e.hourFirstAt) >= time.Hour {
		e.hourCount = 0
		e.hourFirstAt = now
	}

	if e.burstCount >= l.config.BurstMax {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.BurstWindow - now.Sub(e.burstFirstAt),
			Reason:     "burst",
		}
	}
	if e.hourCount >= l.config.MaxPerHour {
		return LimitResult{
			Allowed:    false,
			RetryAfter: time.Hour - now.Sub(e.hourFirstAt),
			Reason:     "hourly_limit",
		}
	}

	e.burstCount++
	e.hourCount++
	e.lastAt = now
	return LimitResult{Allowed: true}
}

func (l *Limiter) hashKey(tenantID, contact string) string {
	hash := sha256.Sum256([]byte(tenantID + ":" + contact))
	return hex.EncodeToString(hash[:8])
}

// normalizeContact lowercases and trims to prevent trivial key variation.
func normalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.byKey {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.byKey, k)
		}
	}
}

// SanitizeContact masks a contact for logging: last 4 digits only.
func SanitizeContact(contact string) string {
	contact = normalizeContact(contact)
	if len(contact) >= 4 {
		return "***" + contact[len(contact)-4:]
	}
	return "***"
}

// LogRateLimitExceeded logs a rate limit event with sanitized contact.
func LogRateLimitExceeded(tenantID, contact, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("tenant_id", tenantID).
		Str("contact", SanitizeContact(contact)).
		Str("reason", reason).
		Msg("Inbound message rate limit exceeded")
}
