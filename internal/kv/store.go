// Package kv provides the key-value storage used by the game engine: string
// values with optional expiry, integer counters, score-sorted sets and capped
// lists. Backends live side by side (memory, SQLite, BoltDB) and share the
// semantics documented on each interface.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotInteger is returned by IncrBy when the stored value is not an integer.
	ErrNotInteger = errors.New("kv: value is not an integer")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kv: store is closed")
)

//go:generate mockgen -destination=./kvmock/store.go -package=kvmock . Store

// Store is the string keyspace. Set clears any expiry on the key; IncrBy
// keeps it. Expired keys behave as missing.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// ScoredMember is one entry of a sorted set.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// SortedSets orders members by score descending; equal scores order by
// member ascending.
type SortedSets interface {
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRevRange(ctx context.Context, key string, offset, limit int) ([]ScoredMember, error)
	ZRevRank(ctx context.Context, key, member string) (int, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// Lists hold newest-first values.
type Lists interface {
	LPushCapped(ctx context.Context, key, value string, max int) error
	LRange(ctx context.Context, key string, offset, limit int) ([]string, error)
}

// Backend is a complete storage implementation.
type Backend interface {
	Store
	SortedSets
	Lists
	// PurgeExpired removes expired string keys and returns how many were dropped.
	PurgeExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// expiryMillis converts a TTL into an absolute deadline in unix milliseconds.
func expiryMillis(now time.Time, ttl time.Duration) int64 {
	return now.Add(ttl).UnixMilli()
}

// window clamps an offset/limit pair against n items. limit <= 0 means all.
func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
