package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memValue struct {
	value     string
	expiresAt int64 // unix ms, 0 = no expiry
}

// Memory is an in-process Backend. Data is lost on exit.
type Memory struct {
	mu      sync.Mutex
	opts    options
	strings map[string]memValue
	zsets   map[string]map[string]float64
	lists   map[string][]string
	closed  bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:    buildOptions(opts),
		strings: make(map[string]memValue),
		zsets:   make(map[string]map[string]float64),
		lists:   make(map[string][]string),
	}
}

func (m *Memory) live(key string) (memValue, bool) {
	v, ok := m.strings[key]
	if !ok {
		return memValue{}, false
	}
	if v.expiresAt != 0 && v.expiresAt <= m.opts.now().UnixMilli() {
		delete(m.strings, key)
		return memValue{}, false
	}
	return v, true
}

func (m *Memory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value stored at key.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := m.live(key)
	return v.value, ok, nil
}

// Set stores value at key and clears its expiry.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.strings[key] = memValue{value: value}
	return nil
}

// Delete removes key from every keyspace.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	delete(m.strings, key)
	delete(m.zsets, key)
	delete(m.lists, key)
	return nil
}

// IncrBy adds n to the integer at key, treating a missing key as 0.
func (m *Memory) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	v, ok := m.live(key)
	var cur int64
	if ok {
		parsed, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
		}
		cur = parsed
	}
	cur += n
	v.value = strconv.FormatInt(cur, 10)
	m.strings[key] = v
	return cur, nil
}

// Expire sets a TTL on an existing key. Missing keys are ignored.
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	v, ok := m.live(key)
	if !ok {
		return nil
	}
	v.expiresAt = expiryMillis(m.opts.now(), ttl)
	m.strings[key] = v
	return nil
}

// ZAdd sets member's score.
func (m *Memory) ZAdd(ctx context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]float64)
		m.zsets[key] = set
	}
	set[member] = score
	return nil
}

func (m *Memory) sorted(key string) []ScoredMember {
	set := m.zsets[key]
	out := make([]ScoredMember, 0, len(set))
	for member, score := range set {
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	sortScored(out)
	return out
}

// ZRevRange returns a window of the set, highest score first.
func (m *Memory) ZRevRange(ctx context.Context, key string, offset, limit int) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	all := m.sorted(key)
	start, end := window(len(all), offset, limit)
	return append([]ScoredMember(nil), all[start:end]...), nil
}

// ZRevRank returns member's zero-based position in ZRevRange order.
func (m *Memory) ZRevRank(ctx context.Context, key, member string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, false, err
	}
	if _, ok := m.zsets[key][member]; !ok {
		return 0, false, nil
	}
	for i, sm := range m.sorted(key) {
		if sm.Member == member {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// ZCard returns the number of members in the set.
func (m *Memory) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	return int64(len(m.zsets[key])), nil
}

// LPushCapped prepends value and keeps at most max entries.
func (m *Memory) LPushCapped(ctx context.Context, key, value string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	list := append([]string{value}, m.lists[key]...)
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	m.lists[key] = list
	return nil
}

// LRange returns a window of the list, newest first.
func (m *Memory) LRange(ctx context.Context, key string, offset, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	list := m.lists[key]
	start, end := window(len(list), offset, limit)
	return append([]string(nil), list[start:end]...), nil
}

// PurgeExpired drops expired string keys.
func (m *Memory) PurgeExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	now := m.opts.now().UnixMilli()
	var n int64
	for key, v := range m.strings {
		if v.expiresAt != 0 && v.expiresAt <= now {
			delete(m.strings, key)
			n++
		}
	}
	return n, nil
}

// Ping reports whether the store is open.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(ctx)
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func sortScored(members []ScoredMember) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})
}
