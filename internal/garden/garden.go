// Package garden aggregates every player's collected leaves into the shared
// community garden: a lifetime total, time-boxed goals and a season cycle.
package garden

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Season of the garden cycle.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

var seasons = []Season{SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter}

// Next returns the season that follows s.
func (s Season) Next() Season {
	for i, v := range seasons {
		if v == s {
			return seasons[(i+1)%len(seasons)]
		}
	}
	return SeasonSpring
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalExpired   GoalStatus = "expired"
)

// GoalType names the window a goal covers.
type GoalType string

const (
	GoalDaily    GoalType = "daily"
	GoalWeekly   GoalType = "weekly"
	GoalSeasonal GoalType = "seasonal"
	GoalSpecial  GoalType = "special"
)

const (
	// SeasonThreshold is the number of leaves per garden level.
	SeasonThreshold = 10000
	dailyTarget     = 500
	weeklyTarget    = 2500
	week            = 7 * 24 * time.Hour
)

// Goal is a shared target. Times are unix milliseconds.
type Goal struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TargetLeaves  int64      `json:"targetLeaves"`
	CurrentLeaves int64      `json:"currentLeaves"`
	Reward        string     `json:"reward"`
	StartTime     int64      `json:"startTime"`
	EndTime       int64      `json:"endTime"`
	Status        GoalStatus `json:"status"`
	Participants  int64      `json:"participants"`
	Type          GoalType   `json:"type"`
}

// Garden is the singleton community state.
type Garden struct {
	TotalLeavesCollected int64    `json:"totalLeavesCollected"`
	ActiveGoals          []Goal   `json:"activeGoals"`
	CompletedGoals       int      `json:"completedGoals"`
	CurrentSeason        Season   `json:"currentSeason"`
	SeasonProgress       int      `json:"seasonProgress"`
	NextSeasonUnlock     int64    `json:"nextSeasonUnlock"`
	GardenLevel          int      `json:"gardenLevel"`
	SpecialEvents        []string `json:"specialEvents"`
}

// GoalProgress reports a goal touched by one contribution.
type GoalProgress struct {
	GoalID    string `json:"goalId"`
	Progress  int    `json:"progress"`
	Completed bool   `json:"completed"`
}

// Seed returns a fresh garden with the goals of the day and week containing now.
func Seed(now time.Time, loc *time.Location) Garden {
	return Garden{
		ActiveGoals:      []Goal{DailyGoal(now, loc), WeeklyGoal(now)},
		CurrentSeason:    SeasonSpring,
		NextSeasonUnlock: SeasonThreshold,
		GardenLevel:      1,
		SpecialEvents:    []string{},
	}
}

// DailyGoal builds the goal for the calendar day of now in loc.
func DailyGoal(now time.Time, loc *time.Location) Goal {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return Goal{
		ID:           fmt.Sprintf("daily-%d", start.UnixMilli()),
		Title:        "🌱 Daily Harvest",
		Description:  "Community goal: Collect 500 leaves together today!",
		TargetLeaves: dailyTarget,
		Reward:       "Unlock special leaf animations for tomorrow",
		StartTime:    start.UnixMilli(),
		EndTime:      end.UnixMilli(),
		Status:       GoalActive,
		Type:         GoalDaily,
	}
}

// WeeklyGoal builds the goal for the 7-day epoch week containing now.
func WeeklyGoal(now time.Time) Goal {
	ms := now.UnixMilli()
	weekMs := week.Milliseconds()
	start := ms - ms%weekMs
	return Goal{
		ID:           fmt.Sprintf("weekly-%d", ms/weekMs),
		Title:        "🌿 Weekly Garden Growth",
		Description:  "Help the community garden flourish with 2,500 leaves this week!",
		TargetLeaves: weeklyTarget,
		Reward:       "Unlock new leaf types and seasonal decorations",
		StartTime:    start,
		EndTime:      start + weekMs,
		Status:       GoalActive,
		Type:         GoalWeekly,
	}
}

// percent returns round(100*n/d) with halves rounded up.
func percent(n, d int64) int {
	if d <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(n).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(d)).
		Round(0).
		IntPart())
}

// credit adds amount to the lifetime total and every open goal, then
// advances the season. It returns the progress of each credited goal and
// whether the season changed.
func (g *Garden) credit(amount int64, nowMs int64) ([]GoalProgress, bool) {
	g.TotalLeavesCollected += amount

	progress := []GoalProgress{}
	for i := range g.ActiveGoals {
		goal := &g.ActiveGoals[i]
		if goal.Status != GoalActive || nowMs > goal.EndTime {
			continue
		}
		goal.CurrentLeaves += amount
		if goal.CurrentLeaves >= goal.TargetLeaves {
			goal.Status = GoalCompleted
			g.CompletedGoals++
			progress = append(progress, GoalProgress{GoalID: goal.ID, Progress: 100, Completed: true})
			continue
		}
		progress = append(progress, GoalProgress{
			GoalID:   goal.ID,
			Progress: percent(goal.CurrentLeaves, goal.TargetLeaves),
		})
	}

	threshold := g.NextSeasonUnlock
	if threshold <= 0 {
		threshold = SeasonThreshold
		g.NextSeasonUnlock = threshold
	}
	g.SeasonProgress = percent(g.TotalLeavesCollected%threshold, threshold)

	advanced := false
	if g.TotalLeavesCollected >= threshold*int64(g.GardenLevel) {
		g.GardenLevel++
		g.SeasonProgress = 0
		g.CurrentSeason = g.CurrentSeason.Next()
		advanced = true
	}
	return progress, advanced
}

// sweep expires goals whose window has passed and seeds the current day's
// and week's goals when missing. The latest ended goal of each type stays
// listed until the next one of that type ends; older ended goals are pruned
// and their ids returned. It reports whether g changed.
func (g *Garden) sweep(now time.Time, loc *time.Location) (expired int, pruned []string, changed bool) {
	nowMs := now.UnixMilli()
	latestEnded := make(map[GoalType]int64)
	for i := range g.ActiveGoals {
		goal := &g.ActiveGoals[i]
		if nowMs <= goal.EndTime {
			continue
		}
		if goal.Status == GoalActive {
			goal.Status = GoalExpired
			expired++
			changed = true
		}
		if goal.EndTime > latestEnded[goal.Type] {
			latestEnded[goal.Type] = goal.EndTime
		}
	}

	kept := g.ActiveGoals[:0]
	for _, goal := range g.ActiveGoals {
		if nowMs > goal.EndTime && goal.EndTime < latestEnded[goal.Type] {
			pruned = append(pruned, goal.ID)
			changed = true
			continue
		}
		kept = append(kept, goal)
	}
	g.ActiveGoals = kept

	for _, fresh := range []Goal{DailyGoal(now, loc), WeeklyGoal(now)} {
		if !g.hasGoal(fresh.ID) {
			g.ActiveGoals = append(g.ActiveGoals, fresh)
			changed = true
		}
	}
	if g.SpecialEvents == nil {
		g.SpecialEvents = []string{}
	}
	return expired, pruned, changed
}

func (g *Garden) hasGoal(id string) bool {
	for _, goal := range g.ActiveGoals {
		if goal.ID == id {
			return true
		}
	}
	return false
}
