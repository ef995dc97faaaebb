// Package quota enforces the per-player daily game allowance.
package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MJE43/ebb-flow/internal/kv"
)

const (
	// DailyLimit is the number of games a player may start per calendar day.
	DailyLimit = 20
	counterTTL = 24 * time.Hour
	keyPrefix  = "ebbflow:daily:"
)

// Status reports how much of today's allowance is left.
type Status struct {
	Allowed   bool `json:"canPlay"`
	Used      int  `json:"used"`
	Remaining int  `json:"dailyGamesRemaining"`
}

// Limiter counts started games per (player, day).
type Limiter struct {
	store kv.Store
	limit int
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit overrides DailyLimit.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithLocation sets the time zone whose midnight starts a new day.
func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter backed by store.
func NewLimiter(store kv.Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, limit: DailyLimit, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the counter key for player on the day containing t.
func Key(player string, t time.Time) string {
	return keyPrefix + player + ":" + t.Format(time.DateOnly)
}

func (l *Limiter) key(player string) string {
	return Key(player, l.now().In(l.loc))
}

// Limit returns the configured daily allowance.
func (l *Limiter) Limit() int { return l.limit }

// CanAttempt reports whether player may start another game today.
func (l *Limiter) CanAttempt(ctx context.Context, player string) (Status, error) {
	key := l.key(player)
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("quota: read %s: %w", key, err)
	}
	used := 0
	if ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Status{}, fmt.Errorf("%w: quota counter %s=%q", kv.ErrMalformedState, key, raw)
		}
		used = n
	}
	return l.status(used), nil
}

// Increment records one started game and returns today's count.
func (l *Limiter) Increment(ctx context.Context, player string) (int, error) {
	key := l.key(player)
	n, err := l.store.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, fmt.Errorf("quota: increment %s: %w", key, err)
	}
	if err := l.store.Expire(ctx, key, counterTTL); err != nil {
		return 0, fmt.Errorf("quota: expire %s: %w", key, err)
	}
	return int(n), nil
}

// Release gives back one game counted by Increment for a start that did
// not go through.
func (l *Limiter) Release(ctx context.Context, player string) error {
	key := l.key(player)
	if _, err := l.store.IncrBy(ctx, key, -1); err != nil {
		return fmt.Errorf("quota: release %s: %w", key, err)
	}
	return nil
}

// Reset clears today's counter for player.
func (l *Limiter) Reset(ctx context.Context, player string) error {
	key := l.key(player)
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("quota: reset %s: %w", key, err)
	}
	return nil
}

// StatusFor builds the Status for a known usage count.
func (l *Limiter) StatusFor(used int) Status {
	return l.status(used)
}

func (l *Limiter) status(used int) Status {
	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{Allowed: remaining > 0, Used: used, Remaining: remaining}
}
