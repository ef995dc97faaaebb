package game

import (
	"fmt"
	"strings"
)

// Difficulty selects a tier of the difficulty table.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DifficultyConfig sizes a session.
type DifficultyConfig struct {
	TargetLeaves int
	TotalLeaves  int
	LeafSpeed    float64
	TimeBonus    float64
}

var difficulties = map[Difficulty]DifficultyConfig{
	DifficultyEasy:   {TargetLeaves: 10, TotalLeaves: 25, LeafSpeed: 0.15, TimeBonus: 1.0},
	DifficultyMedium: {TargetLeaves: 15, TotalLeaves: 35, LeafSpeed: 0.25, TimeBonus: 1.5},
	DifficultyHard:   {TargetLeaves: 20, TotalLeaves: 45, LeafSpeed: 0.4, TimeBonus: 2.0},
}

// LookupDifficulty returns the table row for d.
func LookupDifficulty(d Difficulty) (DifficultyConfig, bool) {
	cfg, ok := difficulties[d]
	return cfg, ok
}

// ParseDifficulty validates a client-supplied tier name.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := difficulties[d]; !ok {
		return "", fmt.Errorf("%w: difficulty must be one of easy, medium, hard (got %q)", ErrInvalidInput, s)
	}
	return d, nil
}
