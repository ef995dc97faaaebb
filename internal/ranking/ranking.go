// Package ranking maintains the read models shown next to the game: the
// score leaderboard and the list of recently finished games.
package ranking

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/MJE43/ebb-flow/internal/kv"
	"github.com/MJE43/ebb-flow/internal/profile"
)

const (
	// LeaderboardKey is the sorted set of total scores by username.
	LeaderboardKey = "ebbflow:leaderboard"
	// RecentKey is the capped list of finished games, newest first.
	RecentKey = "ebbflow:recent"
	// RecentCap bounds the recent-games list.
	RecentCap = 20
	// DefaultLeaderboardSize is the number of entries returned by default.
	DefaultLeaderboardSize = 10

	recentSchema        = "recent-game"
	recentSchemaVersion = 1
)

// GameSummary is one entry of the recent-games list.
type GameSummary struct {
	Username   string `json:"username"`
	Level      int    `json:"level"`
	Score      int64  `json:"score"`
	Timestamp  int64  `json:"timestamp"`
	Difficulty string `json:"difficulty"`
	Status     string `json:"status,omitempty"`
}

// Storage is what the board needs from a backend.
type Storage interface {
	kv.SortedSets
	kv.Lists
}

// ProfileReader loads profiles without creating them.
type ProfileReader interface {
	Get(ctx context.Context, username string) (*profile.Profile, bool, error)
}

// Board answers leaderboard and recent-games queries.
type Board struct {
	store    Storage
	profiles ProfileReader
	logger   *log.Logger
}

// NewBoard creates a board. logger may be nil.
func NewBoard(store Storage, profiles ProfileReader, logger *log.Logger) *Board {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Board{store: store, profiles: profiles, logger: logger}
}

// UpdateScore records username's current total score.
func (b *Board) UpdateScore(ctx context.Context, username string, totalScore int64) error {
	if err := b.store.ZAdd(ctx, LeaderboardKey, username, float64(totalScore)); err != nil {
		return fmt.Errorf("ranking: update %s: %w", username, err)
	}
	return nil
}

// Rank returns username's 1-based leaderboard position, or 0 when unranked.
func (b *Board) Rank(ctx context.Context, username string) (int, error) {
	pos, ok, err := b.store.ZRevRank(ctx, LeaderboardKey, username)
	if err != nil {
		return 0, fmt.Errorf("ranking: rank %s: %w", username, err)
	}
	if !ok {
		return 0, nil
	}
	return pos + 1, nil
}

// Leaderboard returns up to limit profiles, best first, with Rank filled.
func (b *Board) Leaderboard(ctx context.Context, limit int) ([]profile.Profile, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	entries, err := b.store.ZRevRange(ctx, LeaderboardKey, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking: leaderboard: %w", err)
	}
	out := make([]profile.Profile, 0, len(entries))
	for i, e := range entries {
		p, ok, err := b.profiles.Get(ctx, e.Member)
		if err != nil {
			return nil, err
		}
		if !ok {
			b.logger.Printf("leaderboard_orphan username=%s score=%.0f", e.Member, e.Score)
			continue
		}
		p.Rank = i + 1
		out = append(out, *p)
	}
	return out, nil
}

// RecordGame prepends a finished game to the recent list.
func (b *Board) RecordGame(ctx context.Context, g GameSummary) error {
	raw, err := kv.Encode(recentSchema, recentSchemaVersion, g)
	if err != nil {
		return err
	}
	if err := b.store.LPushCapped(ctx, RecentKey, raw, RecentCap); err != nil {
		return fmt.Errorf("ranking: record game: %w", err)
	}
	return nil
}

// RecentGames returns up to limit finished games, newest first.
func (b *Board) RecentGames(ctx context.Context, limit int) ([]GameSummary, error) {
	if limit <= 0 || limit > RecentCap {
		limit = RecentCap
	}
	raws, err := b.store.LRange(ctx, RecentKey, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking: recent games: %w", err)
	}
	out := make([]GameSummary, 0, len(raws))
	for _, raw := range raws {
		var g GameSummary
		if err := kv.Decode(raw, recentSchema, recentSchemaVersion, &g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
