package garden

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/MJE43/ebb-flow/internal/kv"
)

const (
	// Key is the storage key of the garden singleton.
	Key           = "ebbflow:community-garden"
	schema        = "garden"
	schemaVersion = 1
	lockKey       = "garden"
)

// Storage is what the engine needs from a backend.
type Storage interface {
	kv.Store
	kv.SortedSets
}

// Engine owns every read-modify-write of the garden. Contribute is atomic
// per call within the process.
type Engine struct {
	store    Storage
	locks    *kv.Locker
	now      func() time.Time
	loc      *time.Location
	logger   *log.Logger
	onChange func(Garden)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone of the daily goal.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the logger for goal and season events.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// OnChange registers fn to receive the garden after every committed write.
func OnChange(fn func(Garden)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine creates a garden engine over store.
func NewEngine(store Storage, locks *kv.Locker, opts ...Option) *Engine {
	if locks == nil {
		locks = kv.NewLocker()
	}
	e := &Engine{
		store:  store,
		locks:  locks,
		now:    time.Now,
		loc:    time.UTC,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParticipantsKey returns the sorted-set key of a goal's contributors.
func ParticipantsKey(goalID string) string {
	return "ebbflow:goal:" + goalID + ":participants"
}

// Contribute adds amount leaves from player to the garden and returns the
// progress of every goal it credited.
func (e *Engine) Contribute(ctx context.Context, amount int, player string) ([]GoalProgress, error) {
	if amount <= 0 {
		return []GoalProgress{}, nil
	}

	unlock := e.locks.Lock(lockKey)
	g, err := e.loadLocked(ctx)
	if err != nil {
		unlock()
		return nil, err
	}

	now := e.now()
	_, pruned, _ := g.sweep(now, e.loc)
	progress, advanced := g.credit(int64(amount), now.UnixMilli())

	if err := e.countParticipants(ctx, &g, progress, player, now); err != nil {
		unlock()
		return nil, err
	}
	if err := e.save(ctx, g); err != nil {
		unlock()
		return nil, err
	}
	e.dropParticipants(ctx, pruned)
	unlock()

	for _, p := range progress {
		if p.Completed {
			e.logger.Printf("goal_completed goal_id=%s player=%s total=%d", p.GoalID, player, g.TotalLeavesCollected)
		}
	}
	if advanced {
		e.logger.Printf("season_advanced season=%s level=%d total=%d", g.CurrentSeason, g.GardenLevel, g.TotalLeavesCollected)
	}
	e.notify(g)
	return progress, nil
}

func (e *Engine) countParticipants(ctx context.Context, g *Garden, progress []GoalProgress, player string, now time.Time) error {
	for _, p := range progress {
		key := ParticipantsKey(p.GoalID)
		if err := e.store.ZAdd(ctx, key, player, float64(now.UnixMilli())); err != nil {
			return fmt.Errorf("garden: add participant: %w", err)
		}
		n, err := e.store.ZCard(ctx, key)
		if err != nil {
			return fmt.Errorf("garden: count participants: %w", err)
		}
		for i := range g.ActiveGoals {
			if g.ActiveGoals[i].ID == p.GoalID {
				g.ActiveGoals[i].Participants = n
			}
		}
	}
	return nil
}

// dropParticipants deletes the contributor sets of pruned goals. The garden
// no longer references them, so a failure only leaves an orphaned key.
func (e *Engine) dropParticipants(ctx context.Context, goalIDs []string) {
	for _, id := range goalIDs {
		if err := e.store.Delete(ctx, ParticipantsKey(id)); err != nil {
			e.logger.Printf("participants_delete_failed goal_id=%s error=%v", id, err)
		}
	}
}

// Check loads the stored garden, seeding it on first use, and reports
// whether it can be decoded. Nothing else is written.
func (e *Engine) Check(ctx context.Context) error {
	unlock := e.locks.Lock(lockKey)
	defer unlock()
	_, err := e.loadLocked(ctx)
	return err
}

// Snapshot returns the current garden, creating it on first use and
// applying the expiry sweep.
func (e *Engine) Snapshot(ctx context.Context) (Garden, error) {
	g, _, err := e.sweepAndSave(ctx)
	return g, err
}

// Sweep expires ended goals and rotates in the current ones. It returns the
// number of goals that expired.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	_, expired, err := e.sweepAndSave(ctx)
	return expired, err
}

func (e *Engine) sweepAndSave(ctx context.Context) (Garden, int, error) {
	unlock := e.locks.Lock(lockKey)
	g, err := e.loadLocked(ctx)
	if err != nil {
		unlock()
		return Garden{}, 0, err
	}
	expired, pruned, changed := g.sweep(e.now(), e.loc)
	if changed {
		if err := e.save(ctx, g); err != nil {
			unlock()
			return Garden{}, 0, err
		}
		e.dropParticipants(ctx, pruned)
	}
	unlock()

	if expired > 0 {
		e.logger.Printf("goals_expired count=%d", expired)
	}
	if changed {
		e.notify(g)
	}
	return g, expired, nil
}

func (e *Engine) loadLocked(ctx context.Context) (Garden, error) {
	raw, ok, err := e.store.Get(ctx, Key)
	if err != nil {
		return Garden{}, fmt.Errorf("garden: load: %w", err)
	}
	if !ok {
		g := Seed(e.now(), e.loc)
		if err := e.save(ctx, g); err != nil {
			return Garden{}, err
		}
		return g, nil
	}
	var g Garden
	if err := kv.Decode(raw, schema, schemaVersion, &g); err != nil {
		return Garden{}, err
	}
	return g, nil
}

func (e *Engine) save(ctx context.Context, g Garden) error {
	raw, err := kv.Encode(schema, schemaVersion, g)
	if err != nil {
		return err
	}
	if err := e.store.Set(ctx, Key, raw); err != nil {
		return fmt.Errorf("garden: save: %w", err)
	}
	return nil
}

func (e *Engine) notify(g Garden) {
	if e.onChange == nil {
		return
	}
	cp := g
	cp.ActiveGoals = append([]Goal(nil), g.ActiveGoals...)
	e.onChange(cp)
}
