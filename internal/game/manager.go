// Package game runs leaf-collection sessions: it generates the leaf field,
// scores clicks against the stored session and fans each collected leaf out
// to the player's profile, the community garden and the leaderboard.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/ebb-flow/internal/engine"
	"github.com/MJE43/ebb-flow/internal/garden"
	"github.com/MJE43/ebb-flow/internal/kv"
	"github.com/MJE43/ebb-flow/internal/profile"
	"github.com/MJE43/ebb-flow/internal/quota"
	"github.com/MJE43/ebb-flow/internal/ranking"
)

// Deps wires a Manager. Store, Profiles, Limiter, Garden and Board are required.
type Deps struct {
	Store    kv.Store
	Locks    *kv.Locker
	Profiles *profile.Store
	Limiter  *quota.Limiter
	Garden   *garden.Engine
	Board    *ranking.Board

	// Secret keys the per-session leaf stream.
	Secret    string
	Now       func() time.Time
	NewID     func() string
	NewSource func(secret, sessionID string) engine.Source
	Logger    *log.Logger
}

// Manager is the session state machine.
type Manager struct {
	store     kv.Store
	locks     *kv.Locker
	profiles  *profile.Store
	limiter   *quota.Limiter
	community *garden.Engine
	board     *ranking.Board
	secret    string
	now       func() time.Time
	newID     func() string
	newSource func(secret, sessionID string) engine.Source
	logger    *log.Logger
}

// NewManager validates d and builds a Manager.
func NewManager(d Deps) (*Manager, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("game: store is required")
	case d.Profiles == nil:
		return nil, errors.New("game: profile store is required")
	case d.Limiter == nil:
		return nil, errors.New("game: limiter is required")
	case d.Garden == nil:
		return nil, errors.New("game: garden engine is required")
	case d.Board == nil:
		return nil, errors.New("game: board is required")
	}

	m := &Manager{
		store:     d.Store,
		locks:     d.Locks,
		profiles:  d.Profiles,
		limiter:   d.Limiter,
		community: d.Garden,
		board:     d.Board,
		secret:    d.Secret,
		now:       d.Now,
		newID:     d.NewID,
		newSource: d.NewSource,
		logger:    d.Logger,
	}
	if m.locks == nil {
		m.locks = kv.NewLocker()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.newSource == nil {
		m.newSource = func(secret, sessionID string) engine.Source {
			return engine.NewStream(secret, sessionID, 0)
		}
	}
	if m.logger == nil {
		m.logger = log.New(os.Stdout, "[GAME] ", log.LstdFlags|log.Lshortfile)
	}
	return m, nil
}

func quotaLock(player string) string   { return "quota:" + player }
func sessionLock(player string) string { return "session:" + player }

// StartSession opens a new session for player, replacing any previous one.
// The session is written last; an earlier failure undoes the quota and
// profile writes so the start can be retried.
func (m *Manager) StartSession(ctx context.Context, player string, d Difficulty) (*Session, quota.Status, error) {
	if player == "" {
		return nil, quota.Status{}, fmt.Errorf("%w: player is required", ErrInvalidInput)
	}
	cfg, ok := LookupDifficulty(d)
	if !ok {
		return nil, quota.Status{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, d)
	}

	unlockQuota := m.locks.Lock(quotaLock(player))
	defer unlockQuota()

	st, err := m.limiter.CanAttempt(ctx, player)
	if err != nil {
		return nil, quota.Status{}, err
	}
	if !st.Allowed {
		return nil, st, fmt.Errorf("%w: %s played %d of %d games today", ErrQuotaExceeded, player, st.Used, m.limiter.Limit())
	}

	unlockSession := m.locks.Lock(sessionLock(player))
	defer unlockSession()

	before, err := m.profiles.Load(ctx, player)
	if err != nil {
		return nil, quota.Status{}, err
	}

	now := m.now()
	id := m.newID()
	s := newSession(id, player, d, cfg, before.HighestLevel, m.newSource(m.secret, id), now)

	count, err := m.limiter.Increment(ctx, player)
	if err != nil {
		return nil, quota.Status{}, err
	}
	if _, err := m.profiles.Update(ctx, player, func(p *profile.Profile) error {
		p.RecordStart(now, count)
		return nil
	}); err != nil {
		m.releaseQuota(ctx, player)
		return nil, quota.Status{}, err
	}
	if err := m.saveSession(ctx, s); err != nil {
		m.restoreProfile(ctx, before, false)
		m.releaseQuota(ctx, player)
		return nil, quota.Status{}, err
	}

	m.logger.Printf("session_started player=%s session_id=%s difficulty=%s level=%d daily_count=%d seed=%s",
		player, id, d, s.Level, count, engine.HashSecret(m.secret))
	return s, m.limiter.StatusFor(count), nil
}

// CollectLeaf scores one click on leafID in player's session.
//
// The garden and the profile are read before anything is written, and the
// session is saved once the garden has been credited. A failure before that
// point restores the profile and leaderboard score and leaves the leaf
// uncollected.
func (m *Manager) CollectLeaf(ctx context.Context, player, leafID string) (*CollectOutcome, error) {
	if player == "" || leafID == "" {
		return nil, fmt.Errorf("%w: player and leaf id are required", ErrInvalidInput)
	}

	unlock := m.locks.Lock(sessionLock(player))
	defer unlock()

	s, err := m.loadSession(ctx, player)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if s.Refresh(now) {
		if err := m.closeByTimer(ctx, s); err != nil {
			return nil, err
		}
	}
	if s.Status != StatusPlaying {
		return m.softOutcome(ctx, s)
	}

	step, err := s.collect(leafID, now)
	if err != nil {
		return nil, err
	}

	before, err := m.profiles.Load(ctx, player)
	if err != nil {
		return nil, err
	}
	if err := m.community.Check(ctx); err != nil {
		return nil, err
	}

	var awarded []string
	p, err := m.profiles.Update(ctx, player, func(p *profile.Profile) error {
		p.RecordLeaf(string(step.leaf.Type), step.leaf.Points, leafTypeNames())
		switch s.Status {
		case StatusCompleted:
			p.RecordCompletion(s.Level, s.Elapsed())
		case StatusFailed:
			p.RecordFailure()
		}
		awarded = p.AwardAchievements()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.board.UpdateScore(ctx, player, p.TotalScore); err != nil {
		m.restoreProfile(ctx, before, false)
		return nil, err
	}
	if p.Rank, err = m.board.Rank(ctx, player); err != nil {
		m.restoreProfile(ctx, before, true)
		return nil, err
	}

	const contribution = 1
	progress, err := m.community.Contribute(ctx, contribution, player)
	if err != nil {
		m.restoreProfile(ctx, before, true)
		return nil, err
	}
	if err := m.saveSession(ctx, s); err != nil {
		m.logger.Printf("session_save_failed player=%s session_id=%s leaf_id=%s error=%v", player, s.ID, leafID, err)
		return nil, err
	}

	if s.Status != StatusPlaying {
		m.recordEnd(ctx, s)
	}
	for _, a := range awarded {
		m.logger.Printf("achievement_unlocked player=%s achievement=%s", player, a)
	}

	result := Result{
		Success:               true,
		Message:               collectMessage(step.leaf, step.gameOver, step.levelCompleted, progress),
		ScoreEarned:           step.leaf.Points,
		LevelCompleted:        step.levelCompleted,
		GameCompleted:         step.levelCompleted && !step.gameOver,
		CommunityContribution: contribution,
		GoalProgress:          progress,
	}
	if result.GameCompleted {
		next := s.Level + 1
		result.NextLevel = &next
	}
	return &CollectOutcome{Result: result, Session: s, Profile: p}, nil
}

// restoreProfile writes back a profile captured before a failed operation.
// Caller holds the session lock, which every profile writer for the player
// also takes.
func (m *Manager) restoreProfile(ctx context.Context, before *profile.Profile, score bool) {
	if err := m.profiles.Save(ctx, before); err != nil {
		m.logger.Printf("profile_restore_failed player=%s error=%v", before.Username, err)
	}
	if !score {
		return
	}
	if err := m.board.UpdateScore(ctx, before.Username, before.TotalScore); err != nil {
		m.logger.Printf("score_restore_failed player=%s error=%v", before.Username, err)
	}
}

func (m *Manager) releaseQuota(ctx context.Context, player string) {
	if err := m.limiter.Release(ctx, player); err != nil {
		m.logger.Printf("quota_release_failed player=%s error=%v", player, err)
	}
}

// RefreshSession applies time-based termination to player's session and
// returns it. Calling it on an ended session changes nothing.
func (m *Manager) RefreshSession(ctx context.Context, player string) (*Session, error) {
	unlock := m.locks.Lock(sessionLock(player))
	defer unlock()

	s, err := m.loadSession(ctx, player)
	if err != nil {
		return nil, err
	}
	if s.Refresh(m.now()) {
		if err := m.closeByTimer(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// closeByTimer persists a session that Refresh just ended. Caller holds the
// session lock. The profile goes first: resetting a streak twice is harmless
// if the session save fails and the next call ends it again.
func (m *Manager) closeByTimer(ctx context.Context, s *Session) error {
	if _, err := m.profiles.Update(ctx, s.Username, func(p *profile.Profile) error {
		if s.Status == StatusFailed {
			p.RecordFailure()
		}
		return nil
	}); err != nil {
		return err
	}
	if err := m.saveSession(ctx, s); err != nil {
		return err
	}
	m.recordEnd(ctx, s)
	return nil
}

// recordEnd logs a finished session and pushes it onto the recent-games
// list. The session is already saved, so a failed push is only logged.
func (m *Manager) recordEnd(ctx context.Context, s *Session) {
	var end int64
	if s.EndTime != nil {
		end = *s.EndTime
	}
	m.logger.Printf("session_ended player=%s session_id=%s status=%s score=%d collected=%d/%d lives=%d",
		s.Username, s.ID, s.Status, s.Score, s.CollectedLeaves, s.TargetLeaves, s.Lives)
	if err := m.board.RecordGame(ctx, ranking.GameSummary{
		Username:   s.Username,
		Level:      s.Level,
		Score:      s.Score,
		Timestamp:  end,
		Difficulty: string(s.Difficulty),
		Status:     string(s.Status),
	}); err != nil {
		m.logger.Printf("recent_game_record_failed player=%s session_id=%s error=%v", s.Username, s.ID, err)
	}
}

func (m *Manager) softOutcome(ctx context.Context, s *Session) (*CollectOutcome, error) {
	p, err := m.profileWithRank(ctx, s.Username)
	if err != nil {
		return nil, err
	}
	completed := s.Status == StatusCompleted
	msg := "Game over!"
	if completed {
		msg = "Game completed!"
	}
	return &CollectOutcome{
		Result: Result{
			Success:        false,
			Message:        msg,
			LevelCompleted: completed,
			GameCompleted:  completed,
			GoalProgress:   []garden.GoalProgress{},
		},
		Session: s,
		Profile: p,
	}, nil
}

func (m *Manager) profileWithRank(ctx context.Context, player string) (*profile.Profile, error) {
	p, err := m.profiles.Load(ctx, player)
	if err != nil {
		return nil, err
	}
	if p.Rank, err = m.board.Rank(ctx, player); err != nil {
		return nil, err
	}
	return p, nil
}

// Overview is everything the client needs on load.
type Overview struct {
	Profile     *profile.Profile
	Quota       quota.Status
	Leaderboard []profile.Profile
	RecentGames []ranking.GameSummary
	Garden      garden.Garden
}

// Initialize gathers the player's overview concurrently.
func (m *Manager) Initialize(ctx context.Context, player string) (*Overview, error) {
	if player == "" {
		return nil, fmt.Errorf("%w: player is required", ErrInvalidInput)
	}
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := m.profileWithRank(gctx, player)
		out.Profile = p
		return err
	})
	g.Go(func() error {
		st, err := m.limiter.CanAttempt(gctx, player)
		out.Quota = st
		return err
	})
	g.Go(func() error {
		lb, err := m.board.Leaderboard(gctx, ranking.DefaultLeaderboardSize)
		out.Leaderboard = lb
		return err
	})
	g.Go(func() error {
		recent, err := m.board.RecentGames(gctx, ranking.RecentCap)
		out.RecentGames = recent
		return err
	})
	g.Go(func() error {
		snap, err := m.community.Snapshot(gctx)
		out.Garden = snap
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Quota reports player's remaining games today.
func (m *Manager) Quota(ctx context.Context, player string) (quota.Status, error) {
	return m.limiter.CanAttempt(ctx, player)
}

// ResetQuota clears player's counter for today.
func (m *Manager) ResetQuota(ctx context.Context, player string) error {
	unlock := m.locks.Lock(quotaLock(player))
	defer unlock()
	if err := m.limiter.Reset(ctx, player); err != nil {
		return err
	}
	m.logger.Printf("quota_reset player=%s", player)
	return nil
}

// Leaderboard returns the top players.
func (m *Manager) Leaderboard(ctx context.Context, limit int) ([]profile.Profile, error) {
	return m.board.Leaderboard(ctx, limit)
}

// RecentGames returns the latest finished games.
func (m *Manager) RecentGames(ctx context.Context, limit int) ([]ranking.GameSummary, error) {
	return m.board.RecentGames(ctx, limit)
}

// Garden returns the community garden.
func (m *Manager) Garden(ctx context.Context) (garden.Garden, error) {
	return m.community.Snapshot(ctx)
}
