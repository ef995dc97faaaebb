package game

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/MJE43/ebb-flow/internal/garden"
	"github.com/MJE43/ebb-flow/internal/kv"
	"github.com/MJE43/ebb-flow/internal/kv/kvmock"
	"github.com/MJE43/ebb-flow/internal/profile"
	"github.com/MJE43/ebb-flow/internal/quota"
	"github.com/MJE43/ebb-flow/internal/ranking"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	mem      *kv.Memory
	clock    *testClock
	profiles *profile.Store
	garden   *garden.Engine
	board    *ranking.Board
	manager  *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 13, 10, 0, 0, 0, time.UTC)}
	mem := kv.NewMemory(kv.WithClock(clock.Now))
	locks := kv.NewLocker()
	profiles := profile.NewStore(mem, locks)
	g := garden.NewEngine(mem, locks, garden.WithClock(clock.Now))
	board := ranking.NewBoard(mem, profiles, nil)

	ids := 0
	m, err := NewManager(Deps{
		Store:    mem,
		Locks:    locks,
		Profiles: profiles,
		Limiter:  quota.NewLimiter(mem, quota.WithClock(clock.Now)),
		Garden:   g,
		Board:    board,
		Secret:   "test-secret",
		Now:      clock.Now,
		NewID: func() string {
			ids++
			return "session-" + strconv.Itoa(ids)
		},
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Failed to build manager: %v", err)
	}
	return &harness{mem: mem, clock: clock, profiles: profiles, garden: g, board: board, manager: m}
}

func (h *harness) collect(t *testing.T, player, leafID string) *CollectOutcome {
	t.Helper()
	out, err := h.manager.CollectLeaf(context.Background(), player, leafID)
	if err != nil {
		t.Fatalf("Failed to collect %s: %v", leafID, err)
	}
	return out
}

func TestNewManagerRequiresDeps(t *testing.T) {
	if _, err := NewManager(Deps{}); err == nil {
		t.Fatal("expected error for empty deps")
	}
}

func TestStartSessionUpdatesProfileAndQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	s, st, err := h.manager.StartSession(ctx, "fern", DifficultyEasy)
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if len(s.Leaves) != 25 || s.TargetLeaves != 10 || s.Level != 1 {
		t.Errorf("session = %d leaves, target %d, level %d", len(s.Leaves), s.TargetLeaves, s.Level)
	}
	if st.Remaining != quota.DailyLimit-1 || !st.Allowed {
		t.Errorf("quota status = %+v", st)
	}

	p, ok, _ := h.profiles.Get(ctx, "fern")
	if !ok || p.GamesPlayed != 1 || p.DailyGamesPlayed != 1 || p.LastPlayTime != h.clock.Now().UnixMilli() {
		t.Errorf("profile after start = %+v", p)
	}

	if _, ok, _ := h.mem.Get(ctx, SessionKey("fern")); !ok {
		t.Fatal("session was not stored")
	}
	h.clock.Advance(SessionTTL + time.Second)
	if _, ok, _ := h.mem.Get(ctx, SessionKey("fern")); ok {
		t.Error("session outlived its TTL")
	}
}

func TestStartSessionRejectsUnknownDifficulty(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.manager.StartSession(context.Background(), "fern", "nightmare"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestEasyScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if _, _, err := h.manager.StartSession(ctx, "fern", DifficultyEasy); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	out := h.collect(t, "fern", "regular-0")
	if out.Session.Lives != 2 || out.Session.Score != 10 || out.Session.Status != StatusPlaying {
		t.Fatalf("after wrong leaf: lives=%d score=%d status=%s", out.Session.Lives, out.Session.Score, out.Session.Status)
	}
	if !strings.HasPrefix(out.Result.Message, "💔 Wrong leaf! -1 life, +10 points") {
		t.Errorf("message = %q", out.Result.Message)
	}

	for i := 0; i < 9; i++ {
		out = h.collect(t, "fern", "target-"+strconv.Itoa(i))
		if out.Result.LevelCompleted || out.Result.NextLevel != nil {
			t.Fatalf("level completed early at target %d", i)
		}
	}
	if out.Session.Score != 910 {
		t.Fatalf("score before last target = %d, want 910", out.Session.Score)
	}

	h.clock.Advance(15 * time.Second)
	out = h.collect(t, "fern", "target-9")
	if out.Session.Score != 910+100+15 {
		t.Errorf("final score = %d, want 1025", out.Session.Score)
	}
	if out.Session.Status != StatusCompleted || out.Session.TimeRemaining != 15 {
		t.Errorf("status=%s timeRemaining=%d", out.Session.Status, out.Session.TimeRemaining)
	}
	r := out.Result
	if !r.Success || !r.LevelCompleted || !r.GameCompleted || r.NextLevel == nil || *r.NextLevel != 2 {
		t.Errorf("result = %+v", r)
	}
	if r.ScoreEarned != 100 || r.CommunityContribution != 1 {
		t.Errorf("scoreEarned=%d contribution=%d", r.ScoreEarned, r.CommunityContribution)
	}
	if !strings.Contains(r.Message, "🎉 Level completed!") || !strings.Contains(r.Message, "🌱 +1 to community garden!") {
		t.Errorf("message = %q", r.Message)
	}

	p := out.Profile
	if p.GamesCompleted != 1 || p.HighestLevel != 2 || p.CurrentStreak != 1 || p.BestTime != 15 {
		t.Errorf("profile = %+v", p)
	}
	// Profile totals count leaf points only; the time bonus stays on the session.
	if p.TotalScore != 1010 || p.TotalLeavesCollected != 11 || p.CommunityContribution != 11 {
		t.Errorf("profile totals = score %d leaves %d contribution %d", p.TotalScore, p.TotalLeavesCollected, p.CommunityContribution)
	}
	if p.Rank != 1 {
		t.Errorf("rank = %d, want 1", p.Rank)
	}

	recent, _ := h.board.RecentGames(ctx, 0)
	if len(recent) != 1 || recent[0].Score != 1025 || recent[0].Difficulty != "easy" {
		t.Errorf("recent games = %+v", recent)
	}

	next, _, err := h.manager.StartSession(ctx, "fern", DifficultyEasy)
	if err != nil {
		t.Fatalf("Failed to start second session: %v", err)
	}
	if next.Level != 2 {
		t.Errorf("next session level = %d, want 2", next.Level)
	}
}

func TestHardScenarioFailsOnThirdWrongLeaf(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.manager.StartSession(ctx, "fern", DifficultyHard)

	// Build a streak first so the failure has something to reset.
	h.mem.Set(ctx, profile.Key("fern"), mustEncodeProfile(t, &profile.Profile{
		Username: "fern", HighestLevel: 1, GamesPlayed: 3, CurrentStreak: 2, LongestStreak: 2,
		FavoriteLeafType: "maple", Achievements: []string{},
	}))

	var out *CollectOutcome
	for i := 0; i < 3; i++ {
		out = h.collect(t, "fern", "regular-"+strconv.Itoa(i))
		if i < 2 && out.Session.Status != StatusPlaying {
			t.Fatalf("session ended after %d wrong leaves", i+1)
		}
	}
	if out.Session.Lives != 0 || out.Session.Status != StatusFailed {
		t.Fatalf("lives=%d status=%s, want 0/failed", out.Session.Lives, out.Session.Status)
	}
	if out.Result.GameCompleted || out.Result.LevelCompleted || out.Result.NextLevel != nil {
		t.Errorf("result = %+v", out.Result)
	}
	if !strings.Contains(out.Result.Message, "💀 Game Over! No lives left.") {
		t.Errorf("message = %q", out.Result.Message)
	}
	if out.Profile.CurrentStreak != 0 || out.Profile.LongestStreak != 2 {
		t.Errorf("streak=%d longest=%d, want 0/2", out.Profile.CurrentStreak, out.Profile.LongestStreak)
	}

	soft := h.collect(t, "fern", "target-0")
	if soft.Result.Success || soft.Result.Message != "Game over!" || soft.Result.LevelCompleted {
		t.Errorf("collect after failure = %+v", soft.Result)
	}
}

func mustEncodeProfile(t *testing.T, p *profile.Profile) string {
	t.Helper()
	raw, err := kv.Encode("profile", 1, p)
	if err != nil {
		t.Fatalf("Failed to encode profile: %v", err)
	}
	return raw
}

func TestDuplicateCollect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.manager.StartSession(ctx, "fern", DifficultyMedium)

	first := h.collect(t, "fern", "target-3")
	_, err := h.manager.CollectLeaf(ctx, "fern", "target-3")
	if !errors.Is(err, ErrAlreadyCollected) {
		t.Fatalf("second collect error = %v, want ErrAlreadyCollected", err)
	}
	s, err := h.manager.RefreshSession(ctx, "fern")
	if err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}
	if s.Score != first.Session.Score || s.CollectedLeaves != 1 || s.Lives != MaxLives {
		t.Errorf("duplicate changed session: score=%d collected=%d lives=%d", s.Score, s.CollectedLeaves, s.Lives)
	}
	g, _ := h.garden.Snapshot(ctx)
	if g.TotalLeavesCollected != 1 {
		t.Errorf("garden total = %d, want 1", g.TotalLeavesCollected)
	}

	if _, err := h.manager.CollectLeaf(ctx, "fern", "leaf-999"); !errors.Is(err, ErrLeafNotFound) {
		t.Errorf("unknown leaf error = %v, want ErrLeafNotFound", err)
	}
	if _, err := h.manager.CollectLeaf(ctx, "moss", "target-0"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestConcurrentCollectSameLeaf(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, _, err := h.manager.StartSession(ctx, "fern", DifficultyEasy); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	const clicks = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.manager.CollectLeaf(ctx, "fern", "target-0")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyCollected):
				dups++
			default:
				t.Errorf("collect: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dups != clicks-1 {
		t.Fatalf("ok=%d duplicates=%d, want 1 and %d", ok, dups, clicks-1)
	}
	p, _, _ := h.profiles.Get(ctx, "fern")
	if p.TotalScore != 100 || p.TotalLeavesCollected != 1 {
		t.Errorf("profile score=%d leaves=%d, want 100 and 1", p.TotalScore, p.TotalLeavesCollected)
	}
	g, _ := h.garden.Snapshot(ctx)
	if g.TotalLeavesCollected != 1 {
		t.Errorf("garden total = %d, want 1", g.TotalLeavesCollected)
	}
}

func TestCollectLeafUnreadableStateLeavesLeafRetriable(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"garden", garden.Key},
		{"profile", profile.Key("fern")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			if _, _, err := h.manager.StartSession(ctx, "fern", DifficultyEasy); err != nil {
				t.Fatalf("Failed to start: %v", err)
			}
			if _, err := h.garden.Snapshot(ctx); err != nil {
				t.Fatalf("Failed to seed garden: %v", err)
			}
			sessionBefore, _, _ := h.mem.Get(ctx, SessionKey("fern"))

			h.mem.Set(ctx, tt.key, "{{{")
			if _, err := h.manager.CollectLeaf(ctx, "fern", "target-0"); !errors.Is(err, kv.ErrMalformedState) {
				t.Fatalf("error = %v, want ErrMalformedState", err)
			}
			if after, _, _ := h.mem.Get(ctx, SessionKey("fern")); after != sessionBefore {
				t.Error("session written by a failed collect")
			}
			h.mem.Delete(ctx, tt.key)

			g, _ := h.garden.Snapshot(ctx)
			if g.TotalLeavesCollected != 0 {
				t.Errorf("garden total after failed collect = %d", g.TotalLeavesCollected)
			}

			out := h.collect(t, "fern", "target-0")
			if out.Session.Score != 100 || out.Session.CollectedLeaves != 1 {
				t.Errorf("session score=%d collected=%d", out.Session.Score, out.Session.CollectedLeaves)
			}
			if out.Profile.TotalScore != 100 || out.Profile.TotalLeavesCollected != 1 {
				t.Errorf("profile score=%d leaves=%d", out.Profile.TotalScore, out.Profile.TotalLeavesCollected)
			}
			g, _ = h.garden.Snapshot(ctx)
			if g.TotalLeavesCollected != 1 {
				t.Errorf("garden total = %d, want 1", g.TotalLeavesCollected)
			}
		})
	}
}

// failingStore fails Set on one key while err is set.
type failingStore struct {
	*kv.Memory
	key string
	err error
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if key == f.key && f.err != nil {
		return f.err
	}
	return f.Memory.Set(ctx, key, value)
}

func TestCollectLeafGardenWriteFailureRestoresProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	flaky := &failingStore{Memory: h.mem, key: garden.Key}
	community := garden.NewEngine(flaky, nil, garden.WithClock(h.clock.Now))

	m, err := NewManager(Deps{
		Store:    h.mem,
		Profiles: h.profiles,
		Limiter:  quota.NewLimiter(h.mem, quota.WithClock(h.clock.Now)),
		Garden:   community,
		Board:    h.board,
		Secret:   "test-secret",
		Now:      h.clock.Now,
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Failed to build manager: %v", err)
	}
	if _, _, err := m.StartSession(ctx, "fern", DifficultyEasy); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if _, err := community.Snapshot(ctx); err != nil {
		t.Fatalf("Failed to seed garden: %v", err)
	}

	boom := errors.New("disk full")
	flaky.err = boom
	if _, err := m.CollectLeaf(ctx, "fern", "target-0"); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	p, _, _ := h.profiles.Get(ctx, "fern")
	if p.TotalScore != 0 || p.TotalLeavesCollected != 0 || p.GamesPlayed != 1 {
		t.Errorf("profile after failed collect = score %d leaves %d games %d", p.TotalScore, p.TotalLeavesCollected, p.GamesPlayed)
	}
	s, err := m.RefreshSession(ctx, "fern")
	if err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}
	if s.CollectedLeaves != 0 || s.Score != 0 {
		t.Errorf("session after failed collect = score %d collected %d", s.Score, s.CollectedLeaves)
	}

	flaky.err = nil
	out, err := m.CollectLeaf(ctx, "fern", "target-0")
	if err != nil {
		t.Fatalf("Failed to retry collect: %v", err)
	}
	if out.Profile.TotalScore != 100 || out.Session.CollectedLeaves != 1 {
		t.Errorf("retry = profile score %d, collected %d", out.Profile.TotalScore, out.Session.CollectedLeaves)
	}
	g, _ := community.Snapshot(ctx)
	if g.TotalLeavesCollected != 1 {
		t.Errorf("garden total = %d, want 1", g.TotalLeavesCollected)
	}
}

func TestStartSessionFailureReleasesQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	flaky := &failingStore{Memory: h.mem, key: SessionKey("fern"), err: errors.New("disk full")}
	limiter := quota.NewLimiter(h.mem, quota.WithClock(h.clock.Now))

	m, err := NewManager(Deps{
		Store:    flaky,
		Profiles: h.profiles,
		Limiter:  limiter,
		Garden:   h.garden,
		Board:    h.board,
		Now:      h.clock.Now,
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Failed to build manager: %v", err)
	}
	if _, _, err := m.StartSession(ctx, "fern", DifficultyEasy); !errors.Is(err, flaky.err) {
		t.Fatalf("error = %v, want %v", err, flaky.err)
	}

	st, err := limiter.CanAttempt(ctx, "fern")
	if err != nil {
		t.Fatalf("Failed to check quota: %v", err)
	}
	if st.Used != 0 {
		t.Errorf("quota used = %d after failed start, want 0", st.Used)
	}
	p, _, _ := h.profiles.Get(ctx, "fern")
	if p.GamesPlayed != 0 {
		t.Errorf("gamesPlayed = %d after failed start, want 0", p.GamesPlayed)
	}
}

func TestQuotaExceededOn21stStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var last *Session
	for i := 0; i < quota.DailyLimit; i++ {
		s, _, err := h.manager.StartSession(ctx, "fern", DifficultyEasy)
		if err != nil {
			t.Fatalf("start %d failed: %v", i+1, err)
		}
		last = s
	}

	_, st, err := h.manager.StartSession(ctx, "fern", DifficultyEasy)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("21st start error = %v, want ErrQuotaExceeded", err)
	}
	if st.Remaining != 0 || st.Allowed {
		t.Errorf("status = %+v, want remaining 0", st)
	}
	s, err := h.manager.RefreshSession(ctx, "fern")
	if err != nil || s.ID != last.ID {
		t.Errorf("stored session = %v, %v, want the 20th session %s", s, err, last.ID)
	}
	p, _, _ := h.profiles.Get(ctx, "fern")
	if p.GamesPlayed != quota.DailyLimit {
		t.Errorf("gamesPlayed = %d, want %d", p.GamesPlayed, quota.DailyLimit)
	}

	if err := h.manager.ResetQuota(ctx, "fern"); err != nil {
		t.Fatalf("Failed to reset quota: %v", err)
	}
	if _, _, err := h.manager.StartSession(ctx, "fern", DifficultyEasy); err != nil {
		t.Errorf("start after reset failed: %v", err)
	}
}

func TestCollectOnCompletedSessionIsSoft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.manager.StartSession(ctx, "fern", DifficultyEasy)
	for i := 0; i < 10; i++ {
		h.collect(t, "fern", "target-"+strconv.Itoa(i))
	}

	rawSession, _, _ := h.mem.Get(ctx, SessionKey("fern"))
	rawProfile, _, _ := h.mem.Get(ctx, profile.Key("fern"))
	gardenBefore, _ := h.garden.Snapshot(ctx)

	out := h.collect(t, "fern", "regular-0")
	if out.Result.Success || out.Result.Message != "Game completed!" {
		t.Errorf("result = %+v", out.Result)
	}
	if !out.Result.LevelCompleted || !out.Result.GameCompleted || out.Result.CommunityContribution != 0 {
		t.Errorf("result flags = %+v", out.Result)
	}
	if out.Result.GoalProgress == nil || len(out.Result.GoalProgress) != 0 {
		t.Errorf("goalProgress = %v, want empty", out.Result.GoalProgress)
	}

	afterSession, _, _ := h.mem.Get(ctx, SessionKey("fern"))
	afterProfile, _, _ := h.mem.Get(ctx, profile.Key("fern"))
	if afterSession != rawSession {
		t.Error("session changed")
	}
	if afterProfile != rawProfile {
		t.Error("profile changed")
	}
	gardenAfter, _ := h.garden.Snapshot(ctx)
	if !reflect.DeepEqual(gardenBefore, gardenAfter) {
		t.Error("garden changed")
	}
}

func TestTimerEndsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.manager.StartSession(ctx, "fern", DifficultyEasy)
	h.collect(t, "fern", "target-0")

	h.clock.Advance(12 * time.Second)
	s, err := h.manager.RefreshSession(ctx, "fern")
	if err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}
	if s.Status != StatusPlaying || s.TimeRemaining != 18 {
		t.Fatalf("status=%s timeRemaining=%d", s.Status, s.TimeRemaining)
	}

	h.clock.Advance(20 * time.Second)
	out := h.collect(t, "fern", "target-1")
	if out.Result.Success || out.Result.Message != "Game over!" {
		t.Fatalf("collect after timeout = %+v", out.Result)
	}
	if out.Session.Status != StatusFailed || out.Session.TimeRemaining != 0 || out.Session.CollectedLeaves != 1 {
		t.Errorf("session = status %s time %d collected %d", out.Session.Status, out.Session.TimeRemaining, out.Session.CollectedLeaves)
	}

	again, _ := h.manager.RefreshSession(ctx, "fern")
	if *again.EndTime != *out.Session.EndTime {
		t.Error("refresh moved the end time of an ended session")
	}
	recent, _ := h.board.RecentGames(ctx, 0)
	if len(recent) != 1 || recent[0].Status != string(StatusFailed) {
		t.Errorf("recent games = %+v, want one failed game", recent)
	}
}

func TestGardenTotalsAcrossPlayers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	players := []string{"fern", "moss", "ivy"}
	var wg sync.WaitGroup
	for _, p := range players {
		if _, _, err := h.manager.StartSession(ctx, p, DifficultyHard); err != nil {
			t.Fatalf("Failed to start %s: %v", p, err)
		}
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 12; i++ {
				if _, err := h.manager.CollectLeaf(ctx, p, "target-"+strconv.Itoa(i)); err != nil {
					t.Errorf("collect %s: %v", p, err)
					return
				}
			}
			h.manager.CollectLeaf(ctx, p, "regular-0")
		}(p)
	}
	wg.Wait()

	g, err := h.manager.Garden(ctx)
	if err != nil {
		t.Fatalf("Failed to read garden: %v", err)
	}
	if g.TotalLeavesCollected != int64(len(players)*13) {
		t.Errorf("garden total = %d, want %d", g.TotalLeavesCollected, len(players)*13)
	}
	for _, goal := range g.ActiveGoals {
		if goal.Participants != int64(len(players)) {
			t.Errorf("%s participants = %d", goal.ID, goal.Participants)
		}
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.manager.StartSession(ctx, "moss", DifficultyEasy)
	h.collect(t, "moss", "target-0")

	ov, err := h.manager.Initialize(ctx, "fern")
	if err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	if ov.Profile.Username != "fern" || ov.Profile.HighestLevel != 1 || ov.Profile.Rank != 0 {
		t.Errorf("profile = %+v", ov.Profile)
	}
	if !ov.Quota.Allowed || ov.Quota.Remaining != quota.DailyLimit {
		t.Errorf("quota = %+v", ov.Quota)
	}
	if len(ov.Leaderboard) != 1 || ov.Leaderboard[0].Username != "moss" || ov.Leaderboard[0].Rank != 1 {
		t.Errorf("leaderboard = %+v", ov.Leaderboard)
	}
	if ov.Garden.TotalLeavesCollected != 1 || len(ov.Garden.ActiveGoals) != 2 {
		t.Errorf("garden = %+v", ov.Garden)
	}
	if len(ov.RecentGames) != 0 {
		t.Errorf("recent games = %+v", ov.RecentGames)
	}
}

func TestCollectLeafStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newHarness(t)
	boom := errors.New("connection reset")
	store := kvmock.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), SessionKey("fern")).Return("", false, boom)

	m, err := NewManager(Deps{
		Store:    store,
		Profiles: h.profiles,
		Limiter:  quota.NewLimiter(h.mem),
		Garden:   h.garden,
		Board:    h.board,
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Failed to build manager: %v", err)
	}
	if _, err := m.CollectLeaf(context.Background(), "fern", "target-0"); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
}

func TestMalformedSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mem.Set(ctx, SessionKey("fern"), "{{{")
	if _, err := h.manager.CollectLeaf(ctx, "fern", "target-0"); !errors.Is(err, kv.ErrMalformedState) {
		t.Fatalf("error = %v, want ErrMalformedState", err)
	}
}
