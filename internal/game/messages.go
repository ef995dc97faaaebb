package game

import (
	"fmt"
	"strings"

	"github.com/MJE43/ebb-flow/internal/garden"
)

func collectMessage(leaf Leaf, gameOver, levelCompleted bool, progress []garden.GoalProgress) string {
	var b strings.Builder
	if leaf.IsTarget {
		fmt.Fprintf(&b, "🌟 Target leaf collected! +%d points!", leaf.Points)
	} else {
		fmt.Fprintf(&b, "💔 Wrong leaf! -1 life, +%d points", leaf.Points)
	}

	switch {
	case gameOver:
		b.WriteString(" 💀 Game Over! No lives left.")
	case levelCompleted:
		b.WriteString(" 🎉 Level completed!")
	}

	goalDone := false
	for _, p := range progress {
		if p.Completed {
			goalDone = true
			break
		}
	}
	switch {
	case goalDone:
		b.WriteString(" 🎉 Community goal completed!")
	case len(progress) > 0:
		b.WriteString(" 🌱 +1 to community garden!")
	}
	return b.String()
}
