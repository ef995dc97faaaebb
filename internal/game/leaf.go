package game

import (
	"math"

	"github.com/MJE43/ebb-flow/internal/engine"
)

// GenerateLeaf draws one leaf from src. Draw order is fixed so a seeded
// source always yields the same leaf.
func GenerateLeaf(src engine.Source, id string, isTarget bool, speedMultiplier float64) Leaf {
	angle := src.Float64() * 2 * math.Pi
	speed := (0.1 + src.Float64()*0.3) * speedMultiplier

	leaf := Leaf{
		ID:       id,
		Type:     LeafTypes[pick(src, len(LeafTypes))],
		Color:    LeafColors[pick(src, len(LeafColors))],
		X:        10 + src.Float64()*80,
		Y:        10 + src.Float64()*80,
		IsTarget: isTarget,
		Points:   RegularPoints,
	}
	leaf.VX = math.Cos(angle) * speed
	leaf.VY = math.Sin(angle) * speed
	leaf.Rotation = src.Float64() * 2 * math.Pi
	leaf.RotationSpeed = (src.Float64() - 0.5) * 0.08 * speedMultiplier
	leaf.Size = 0.6 + src.Float64()*0.3
	if isTarget {
		leaf.Points = TargetPoints
	}
	return leaf
}

func pick(src engine.Source, n int) int {
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
