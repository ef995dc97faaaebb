package game

import (
	"context"
	"fmt"
	"time"

	"github.com/MJE43/ebb-flow/internal/engine"
	"github.com/MJE43/ebb-flow/internal/kv"
)

const (
	sessionKeyPrefix     = "ebbflow:session:"
	sessionSchema        = "session"
	sessionSchemaVersion = 1
)

// SessionKey returns the storage key of a player's session.
func SessionKey(player string) string {
	return sessionKeyPrefix + player
}

func newSession(id, player string, d Difficulty, cfg DifficultyConfig, level int, src engine.Source, now time.Time) *Session {
	leaves := make([]Leaf, 0, cfg.TotalLeaves)
	for i := 0; i < cfg.TargetLeaves; i++ {
		leaves = append(leaves, GenerateLeaf(src, fmt.Sprintf("target-%d", i), true, cfg.LeafSpeed))
	}
	for i := 0; i < cfg.TotalLeaves-cfg.TargetLeaves; i++ {
		leaves = append(leaves, GenerateLeaf(src, fmt.Sprintf("regular-%d", i), false, cfg.LeafSpeed))
	}
	return &Session{
		ID:            id,
		Username:      player,
		Difficulty:    d,
		Level:         level,
		Lives:         MaxLives,
		TimeRemaining: int(GameDuration / time.Second),
		TargetLeaves:  cfg.TargetLeaves,
		Leaves:        leaves,
		Status:        StatusPlaying,
		StartTime:     now.UnixMilli(),
	}
}

// Remaining returns the whole seconds left at now, never below zero.
func (s *Session) Remaining(now time.Time) int {
	elapsed := now.UnixMilli() - s.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	left := int(GameDuration/time.Second) - int(elapsed/1000)
	if left < 0 {
		return 0
	}
	return left
}

// Refresh recomputes the timer of a playing session and applies any
// termination it implies. It reports whether the session ended. Ended
// sessions are left untouched.
func (s *Session) Refresh(now time.Time) bool {
	if s.Status != StatusPlaying {
		return false
	}
	s.TimeRemaining = s.Remaining(now)
	switch {
	case s.Lives <= 0:
		s.end(StatusFailed, now)
	case s.CollectedLeaves >= s.TargetLeaves:
		s.end(StatusCompleted, now)
	case s.TimeRemaining <= 0:
		s.end(StatusFailed, now)
	default:
		return false
	}
	return true
}

func (s *Session) end(status Status, now time.Time) {
	s.Status = status
	end := now.UnixMilli()
	s.EndTime = &end
}

// Elapsed is the play time of an ended session.
func (s *Session) Elapsed() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return time.Duration(*s.EndTime-s.StartTime) * time.Millisecond
}

type collectStep struct {
	leaf           Leaf
	levelCompleted bool
	gameOver       bool
	timeBonus      int64
}

// collect applies one click to a playing session.
func (s *Session) collect(leafID string, now time.Time) (collectStep, error) {
	idx := -1
	for i := range s.Leaves {
		if s.Leaves[i].ID == leafID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return collectStep{}, fmt.Errorf("%w: %s", ErrLeafNotFound, leafID)
	}
	leaf := &s.Leaves[idx]
	if leaf.IsCollected {
		return collectStep{}, fmt.Errorf("%w: %s", ErrAlreadyCollected, leafID)
	}

	leaf.IsCollected = true
	s.Score += int64(leaf.Points)
	if leaf.IsTarget {
		s.CollectedLeaves++
	} else if s.Lives > 0 {
		s.Lives--
	}

	step := collectStep{
		leaf:           *leaf,
		levelCompleted: s.CollectedLeaves >= s.TargetLeaves,
		gameOver:       s.Lives <= 0,
	}
	switch {
	case step.gameOver:
		s.end(StatusFailed, now)
	case step.levelCompleted:
		s.end(StatusCompleted, now)
		cfg, _ := LookupDifficulty(s.Difficulty)
		step.timeBonus = int64(float64(s.TimeRemaining) * cfg.TimeBonus)
		s.Score += step.timeBonus
	}
	return step, nil
}

func (m *Manager) loadSession(ctx context.Context, player string) (*Session, error) {
	raw, ok, err := m.store.Get(ctx, SessionKey(player))
	if err != nil {
		return nil, fmt.Errorf("game: load session %s: %w", player, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, player)
	}
	var s Session
	if err := kv.Decode(raw, sessionSchema, sessionSchemaVersion, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Manager) saveSession(ctx context.Context, s *Session) error {
	raw, err := kv.Encode(sessionSchema, sessionSchemaVersion, s)
	if err != nil {
		return err
	}
	key := SessionKey(s.Username)
	if err := m.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("game: save session %s: %w", s.Username, err)
	}
	if err := m.store.Expire(ctx, key, SessionTTL); err != nil {
		return fmt.Errorf("game: expire session %s: %w", s.Username, err)
	}
	return nil
}
