package game

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MJE43/ebb-flow/internal/engine"
)

// fixedSource replays values in a loop.
type fixedSource struct {
	vals []float64
	i    int
}

func (f *fixedSource) Float64() float64 {
	v := f.vals[f.i%len(f.vals)]
	f.i++
	return v
}

func TestGenerateLeafDrawOrder(t *testing.T) {
	// angle, speed, type, color, x, y, rotation, rotationSpeed, size
	src := &fixedSource{vals: []float64{0.25, 0.5, 0.45, 0.999, 0, 0.5, 0.5, 1, 1}}
	leaf := GenerateLeaf(src, "target-0", true, 2)

	if leaf.Type != LeafBirch || leaf.Color != ColorBrown {
		t.Errorf("type=%s color=%s, want birch/brown", leaf.Type, leaf.Color)
	}
	if leaf.X != 10 || leaf.Y != 50 {
		t.Errorf("position = (%v,%v), want (10,50)", leaf.X, leaf.Y)
	}
	speed := (0.1 + 0.5*0.3) * 2
	if math.Abs(leaf.VX) > 1e-12 || math.Abs(leaf.VY-speed) > 1e-12 {
		t.Errorf("velocity = (%v,%v), want (0,%v)", leaf.VX, leaf.VY, speed)
	}
	if math.Abs(leaf.Rotation-math.Pi) > 1e-12 {
		t.Errorf("rotation = %v, want pi", leaf.Rotation)
	}
	if math.Abs(leaf.RotationSpeed-0.08) > 1e-12 {
		t.Errorf("rotationSpeed = %v, want 0.08", leaf.RotationSpeed)
	}
	if math.Abs(leaf.Size-0.9) > 1e-12 {
		t.Errorf("size = %v, want 0.9", leaf.Size)
	}
	if leaf.Points != TargetPoints || !leaf.IsTarget || leaf.IsCollected {
		t.Errorf("leaf flags = %+v", leaf)
	}

	regular := GenerateLeaf(&fixedSource{vals: []float64{0}}, "regular-0", false, 1)
	if regular.Points != RegularPoints || regular.IsTarget {
		t.Errorf("regular leaf = %+v", regular)
	}
}

func TestNewSessionPerTier(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		t.Run(string(d), func(t *testing.T) {
			cfg, ok := LookupDifficulty(d)
			if !ok {
				t.Fatalf("no config for %s", d)
			}
			s := newSession("id-"+string(d), "fern", d, cfg, 1, engine.NewStream("secret", string(d), 0), now)

			if len(s.Leaves) != cfg.TotalLeaves {
				t.Fatalf("got %d leaves, want %d", len(s.Leaves), cfg.TotalLeaves)
			}
			targets := 0
			ids := make(map[string]bool)
			for _, l := range s.Leaves {
				if l.IsTarget {
					targets++
				}
				if l.X < 10 || l.X > 90 || l.Y < 10 || l.Y > 90 {
					t.Errorf("leaf %s out of bounds: (%v,%v)", l.ID, l.X, l.Y)
				}
				if l.Size < 0.6 || l.Size > 0.9 {
					t.Errorf("leaf %s size %v", l.ID, l.Size)
				}
				if ids[l.ID] {
					t.Errorf("duplicate leaf id %s", l.ID)
				}
				ids[l.ID] = true
			}
			if targets != cfg.TargetLeaves {
				t.Errorf("got %d targets, want %d", targets, cfg.TargetLeaves)
			}
			if !ids["target-0"] || !ids["regular-0"] {
				t.Error("leaf ids do not follow target-i/regular-i")
			}
			if s.Lives != MaxLives || s.TimeRemaining != 30 || s.Status != StatusPlaying || s.StartTime != now.UnixMilli() {
				t.Errorf("session header = %+v", s)
			}
		})
	}
}

func TestNewSessionDeterministic(t *testing.T) {
	cfg, _ := LookupDifficulty(DifficultyMedium)
	now := time.Now()
	a := newSession("same", "fern", DifficultyMedium, cfg, 1, engine.NewStream("k", "same", 0), now)
	b := newSession("same", "fern", DifficultyMedium, cfg, 1, engine.NewStream("k", "same", 0), now)
	for i := range a.Leaves {
		if a.Leaves[i] != b.Leaves[i] {
			t.Fatalf("leaf %d differs between identical seeds", i)
		}
	}
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in      string
		want    Difficulty
		wantErr bool
	}{
		{"easy", DifficultyEasy, false},
		{" Hard ", DifficultyHard, false},
		{"MEDIUM", DifficultyMedium, false},
		{"nightmare", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDifficulty(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ParseDifficulty(%q) error = %v, want ErrInvalidInput", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDifficulty(%q) = %s, %v", tt.in, got, err)
		}
	}
}
