// Package profile holds the lifetime statistics of a player and the rules
// that update them after each game event.
package profile

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLeafType is the favourite leaf of a player who has collected nothing.
const DefaultLeafType = "maple"

// Achievement identifiers. Each is awarded at most once.
const (
	AchievementFirstLeaf = "first-leaf"
	AchievementFirstWin  = "first-win"
	AchievementStreak3   = "streak-3"
	AchievementStreak10  = "streak-10"
	AchievementLeaves100 = "leaves-100"
	AchievementLeaves1K  = "leaves-1000"
	AchievementGardener  = "gardener-500"
)

// Profile is a player's lifetime record. JSON names match the web client's
// UserStats.
type Profile struct {
	Username              string         `json:"username"`
	TotalScore            int64          `json:"totalScore"`
	HighestLevel          int            `json:"highestLevel"`
	GamesPlayed           int            `json:"gamesPlayed"`
	GamesCompleted        int            `json:"gamesCompleted"`
	AverageScore          int64          `json:"averageScore"`
	BestTime              float64        `json:"bestTime"` // seconds, 0 = unset
	TotalLeavesCollected  int64          `json:"totalLeavesCollected"`
	FavoriteLeafType      string         `json:"favoriteLeafType"`
	LastPlayTime          int64          `json:"lastPlayTime"` // unix ms
	DailyGamesPlayed      int            `json:"dailyGamesPlayed"`
	Rank                  int            `json:"rank"`
	Achievements          []string       `json:"achievements"`
	CurrentStreak         int            `json:"currentStreak"`
	LongestStreak         int            `json:"longestStreak"`
	CommunityContribution int64          `json:"communityContribution"`
	LeafCounts            map[string]int `json:"leafCounts,omitempty"`
}

// New returns the default profile for a player who has never played.
func New(username string) *Profile {
	return &Profile{
		Username:         username,
		HighestLevel:     1,
		FavoriteLeafType: DefaultLeafType,
		Achievements:     []string{},
	}
}

// RecordStart counts a started game.
func (p *Profile) RecordStart(now time.Time, dailyGames int) {
	p.GamesPlayed++
	p.LastPlayTime = now.UnixMilli()
	p.DailyGamesPlayed = dailyGames
	p.refreshAverage()
}

// RecordLeaf credits one collected leaf. order lists the known leaf types and
// breaks favourite ties in favour of the earlier entry.
func (p *Profile) RecordLeaf(leafType string, points int, order []string) {
	p.TotalScore += int64(points)
	p.TotalLeavesCollected++
	p.CommunityContribution++
	if p.LeafCounts == nil {
		p.LeafCounts = make(map[string]int)
	}
	p.LeafCounts[leafType]++
	p.FavoriteLeafType = p.favourite(order)
	p.refreshAverage()
}

// RecordCompletion credits a completed level played at level taking elapsed.
func (p *Profile) RecordCompletion(level int, elapsed time.Duration) {
	p.GamesCompleted++
	p.CurrentStreak++
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	if level >= p.HighestLevel {
		p.HighestLevel = level + 1
	}
	secs, _ := decimal.NewFromInt(elapsed.Milliseconds()).Div(decimal.NewFromInt(1000)).Float64()
	if p.BestTime == 0 || secs < p.BestTime {
		p.BestTime = secs
	}
}

// RecordFailure ends the current streak.
func (p *Profile) RecordFailure() {
	p.CurrentStreak = 0
}

// AwardAchievements appends every newly earned achievement and returns them.
func (p *Profile) AwardAchievements() []string {
	earned := []struct {
		id string
		ok bool
	}{
		{AchievementFirstLeaf, p.TotalLeavesCollected >= 1},
		{AchievementFirstWin, p.GamesCompleted >= 1},
		{AchievementStreak3, p.LongestStreak >= 3},
		{AchievementStreak10, p.LongestStreak >= 10},
		{AchievementLeaves100, p.TotalLeavesCollected >= 100},
		{AchievementLeaves1K, p.TotalLeavesCollected >= 1000},
		{AchievementGardener, p.CommunityContribution >= 500},
	}
	var added []string
	for _, a := range earned {
		if a.ok && !slices.Contains(p.Achievements, a.id) {
			p.Achievements = append(p.Achievements, a.id)
			added = append(added, a.id)
		}
	}
	return added
}

func (p *Profile) refreshAverage() {
	if p.GamesPlayed <= 0 {
		p.AverageScore = 0
		return
	}
	p.AverageScore = decimal.NewFromInt(p.TotalScore).
		Div(decimal.NewFromInt(int64(p.GamesPlayed))).
		Round(0).
		IntPart()
}

func (p *Profile) favourite(order []string) string {
	best, bestCount := p.FavoriteLeafType, 0
	if best == "" {
		best = DefaultLeafType
	}
	for _, t := range order {
		if n := p.LeafCounts[t]; n > bestCount {
			best, bestCount = t, n
		}
	}
	return best
}
