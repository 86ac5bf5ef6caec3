package review

import "github.com/discochess/coach/internal/replay"

// Select returns the plies to analyze: those numbered above skip, in game
// order, truncated to max when max is positive. The result depends only on
// its inputs.
func Select(plies []replay.Ply, skip, max int) []replay.Ply {
	var selected []replay.Ply
	for _, p := range plies {
		if p.Number <= skip {
			continue
		}
		if max > 0 && len(selected) == max {
			break
		}
		selected = append(selected, p)
	}
	return selected
}
