package game

import (
	"time"

	"github.com/MJE43/ebb-flow/internal/garden"
	"github.com/MJE43/ebb-flow/internal/profile"
)

// LeafType is the species of a leaf.
type LeafType string

const (
	LeafMaple  LeafType = "maple"
	LeafOak    LeafType = "oak"
	LeafBirch  LeafType = "birch"
	LeafWillow LeafType = "willow"
	LeafCherry LeafType = "cherry"
)

// LeafTypes lists every leaf type in canonical order.
var LeafTypes = []LeafType{LeafMaple, LeafOak, LeafBirch, LeafWillow, LeafCherry}

// LeafColor is the tint of a leaf.
type LeafColor string

const (
	ColorGreen  LeafColor = "green"
	ColorYellow LeafColor = "yellow"
	ColorOrange LeafColor = "orange"
	ColorRed    LeafColor = "red"
	ColorBrown  LeafColor = "brown"
)

// LeafColors lists every colour in canonical order.
var LeafColors = []LeafColor{ColorGreen, ColorYellow, ColorOrange, ColorRed, ColorBrown}

func leafTypeNames() []string {
	out := make([]string, len(LeafTypes))
	for i, t := range LeafTypes {
		out[i] = string(t)
	}
	return out
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusPaused is part of the wire format but never entered.
	StatusPaused Status = "paused"
)

const (
	// GameDuration is the length of one session.
	GameDuration = 30 * time.Second
	// MaxLives is the number of wrong clicks a player can afford.
	MaxLives = 3
	// TargetPoints is awarded for a target leaf.
	TargetPoints = 100
	// RegularPoints is awarded for a regular leaf.
	RegularPoints = 10
	// SessionTTL is how long a session outlives its last write.
	SessionTTL = time.Hour
)

// Leaf is one collectible entity of a session.
type Leaf struct {
	ID            string    `json:"id"`
	Type          LeafType  `json:"type"`
	Color         LeafColor `json:"color"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	VX            float64   `json:"vx"`
	VY            float64   `json:"vy"`
	Rotation      float64   `json:"rotation"`
	RotationSpeed float64   `json:"rotationSpeed"`
	Size          float64   `json:"size"`
	IsTarget      bool      `json:"isTarget"`
	IsCollected   bool      `json:"isCollected"`
	Points        int       `json:"points"`
}

// Session is one timed play-through. Times are unix milliseconds.
type Session struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Difficulty      Difficulty `json:"difficulty"`
	Level           int        `json:"level"`
	Score           int64      `json:"score"`
	Lives           int        `json:"lives"`
	TimeRemaining   int        `json:"timeRemaining"`
	TargetLeaves    int        `json:"targetLeaves"`
	CollectedLeaves int        `json:"collectedLeaves"`
	Leaves          []Leaf     `json:"leaves"`
	Status          Status     `json:"status"`
	StartTime       int64      `json:"startTime"`
	EndTime         *int64     `json:"endTime,omitempty"`
}

// Result describes the outcome of one collect request.
type Result struct {
	Success               bool                  `json:"success"`
	Message               string                `json:"message"`
	ScoreEarned           int                   `json:"scoreEarned"`
	LevelCompleted        bool                  `json:"levelCompleted"`
	GameCompleted         bool                  `json:"gameCompleted"`
	NextLevel             *int                  `json:"nextLevel,omitempty"`
	CommunityContribution int                   `json:"communityContribution"`
	GoalProgress          []garden.GoalProgress `json:"goalProgress"`
}

// CollectOutcome bundles everything a collect request changed.
type CollectOutcome struct {
	Result  Result           `json:"result"`
	Session *Session         `json:"updatedSession"`
	Profile *profile.Profile `json:"updatedUserStats"`
}
