package profile

import (
	"context"
	"fmt"

	"github.com/MJE43/ebb-flow/internal/kv"
)

const (
	keyPrefix     = "ebbflow:user:"
	schema        = "profile"
	schemaVersion = 1
)

// Key returns the storage key of a player's profile.
func Key(username string) string {
	return keyPrefix + username
}

// Store persists profiles. Updates are serialised per player.
type Store struct {
	kv    kv.Store
	locks *kv.Locker
}

// NewStore creates a profile store.
func NewStore(store kv.Store, locks *kv.Locker) *Store {
	if locks == nil {
		locks = kv.NewLocker()
	}
	return &Store{kv: store, locks: locks}
}

// Get reads a profile without creating it.
func (s *Store) Get(ctx context.Context, username string) (*Profile, bool, error) {
	raw, ok, err := s.kv.Get(ctx, Key(username))
	if err != nil {
		return nil, false, fmt.Errorf("profile: load %s: %w", username, err)
	}
	if !ok {
		return nil, false, nil
	}
	p := New(username)
	if err := kv.Decode(raw, schema, schemaVersion, p); err != nil {
		return nil, false, err
	}
	if p.Achievements == nil {
		p.Achievements = []string{}
	}
	return p, true, nil
}

// Load reads a profile, creating and persisting the default one on first use.
func (s *Store) Load(ctx context.Context, username string) (*Profile, error) {
	unlock := s.locks.Lock(lockKey(username))
	defer unlock()
	return s.loadLocked(ctx, username)
}

func (s *Store) loadLocked(ctx context.Context, username string) (*Profile, error) {
	p, ok, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if ok {
		return p, nil
	}
	p = New(username)
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes p unconditionally.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	raw, err := kv.Encode(schema, schemaVersion, p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, Key(p.Username), raw); err != nil {
		return fmt.Errorf("profile: save %s: %w", p.Username, err)
	}
	return nil
}

// Update loads the profile, applies fn and saves the result while holding
// the player's lock. Nothing is written when fn returns an error.
func (s *Store) Update(ctx context.Context, username string, fn func(*Profile) error) (*Profile, error) {
	unlock := s.locks.Lock(lockKey(username))
	defer unlock()

	p, err := s.loadLocked(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func lockKey(username string) string {
	return "profile:" + username
}
