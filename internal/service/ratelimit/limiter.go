// Package ratelimit implements sliding-window request limits over a
// pluggable counter store, so limits hold across restarts and instances
// when the store is shared.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
)

// Rule bounds the attempts a key may make within a sliding window
type Rule struct {
	Name   string        `mapstructure:"name"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Default rules
var (
	General        = Rule{Name: "general", Limit: 100, Window: 15 * time.Minute}
	BookingCreate  = Rule{Name: "booking_create", Limit: 10, Window: 15 * time.Minute}
	WalletTransfer = Rule{Name: "wallet_transfer", Limit: 5, Window: time.Hour}
)

// Window is the state of one key's window after a hit
type Window struct {
	Count   int
	Oldest  time.Time
	Allowed bool
}

// Store keeps per-key hit timestamps
type Store interface {
	// Hit drops timestamps older than window, then records now unless the
	// window already holds limit hits. Rejected attempts are not recorded.
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Window, error)
	// Cleanup drops keys with no hits left in their window
	Cleanup(ctx context.Context, now time.Time) error
}

// Decision is the outcome of one check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter applies rules against a Store
type Limiter struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewLimiter creates a new limiter
func NewLimiter(store Store, log *zap.Logger) *Limiter {
	return &Limiter{store: store, log: log, now: time.Now}
}

// WithClock replaces the time source, for tests
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records an attempt by key under rule and reports whether it may proceed
func (l *Limiter) Allow(ctx context.Context, rule Rule, key string) (Decision, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{}, fmt.Errorf("rate limit rule %q needs a positive limit and window", rule.Name)
	}

	now := l.now()
	w, err := l.store.Hit(ctx, rule.Name+":"+key, now, rule.Window, rule.Limit)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", rule.Name, err)
	}

	oldest := w.Oldest
	if oldest.IsZero() {
		oldest = now
	}
	d := Decision{
		Allowed:   w.Allowed,
		Limit:     rule.Limit,
		Remaining: rule.Limit - w.Count,
		ResetAt:   oldest.Add(rule.Window),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
		telemetry.RateLimitRejectionsTotal.WithLabelValues(rule.Name).Inc()
		l.log.Debug("Rate limit exceeded",
			zap.String("rule", rule.Name),
			zap.String("key", key),
			zap.Duration("retry_after", d.RetryAfter),
		)
	}
	return d, nil
}

// Cleanup drops expired windows from the store
func (l *Limiter) Cleanup(ctx context.Context) error {
	return l.store.Cleanup(ctx, l.now())
}
