// Package accuracy converts engine evaluations into win probabilities,
// move severities and accuracy scores.
//
// Every function is pure. Evaluations are in centipawns from White's point
// of view unless stated otherwise.
package accuracy

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// WinProbabilityK is the logistic slope mapping centipawns to win
// probability.
const WinProbabilityK = 0.00368208

// WinProbability returns the win probability in percent for an evaluation
// in centipawns from the mover's perspective. It is symmetric around zero:
// WinProbability(cp) + WinProbability(-cp) == 100.
func WinProbability(cp float64) float64 {
	return 100 / (1 + math.Exp(-WinProbabilityK*cp))
}

// MoverEvaluation converts a White-perspective evaluation to the
// perspective of the player who made moveNumber. Odd plies are White's.
func MoverEvaluation(whiteEval float64, moveNumber int) float64 {
	if moveNumber%2 == 0 {
		return -whiteEval
	}
	return whiteEval
}

// WinProbabilityLoss returns how much win probability, in percent, the
// mover gave up by losing cpLoss centipawns relative to the best move.
// storedEval is the White-perspective evaluation of the best continuation.
// The result is never negative.
func WinProbabilityLoss(cpLoss, storedEval float64, moveNumber int) float64 {
	moverEval := MoverEvaluation(storedEval, moveNumber)
	best := WinProbability(moverEval)
	realized := WinProbability(moverEval - cpLoss)
	return math.Max(0, best-realized)
}

// WCLToAccuracy maps a mean win-probability loss to an accuracy in
// [0, 100]. Negative input yields 100.
func WCLToAccuracy(meanWCL float64) float64 {
	if meanWCL < 0 || math.IsNaN(meanWCL) {
		return 100
	}
	return clamp(103.1668*math.Exp(-0.04354*meanWCL)-3.1669, 0, 100)
}

// ACPLToAccuracy is the older accuracy estimate based on average
// centipawn loss. It is reported alongside the WCL accuracy for
// comparison only.
func ACPLToAccuracy(acpl float64) float64 {
	if acpl < 0 || math.IsNaN(acpl) {
		return 100
	}
	return clamp(100*math.Exp(-0.005*acpl), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Move is the per-move input to Summarize.
type Move struct {
	// MoveNumber is the 1-based ply. Odd plies are White's.
	MoveNumber int

	CentipawnLoss      float64
	WinProbabilityLoss float64
}

// Side aggregates one player's moves.
type Side struct {
	Accuracy      float64        `json:"accuracy"`
	ACPL          float64        `json:"acpl"`
	ACPLAccuracy  float64        `json:"acplAccuracy"`
	Moves         int            `json:"moves"`
	SeverityCount map[string]int `json:"severityCount,omitempty"`
}

// Summary is the aggregate accuracy of a game.
type Summary struct {
	White   Side    `json:"white"`
	Black   Side    `json:"black"`
	Overall float64 `json:"overall"`
}

// Summarize computes per-side and overall accuracy. Sides without moves
// score 100.
func Summarize(moves []Move, thresholds Thresholds) Summary {
	var white, black, all []Move
	for _, m := range moves {
		if m.MoveNumber%2 == 1 {
			white = append(white, m)
		} else {
			black = append(black, m)
		}
		all = append(all, m)
	}
	return Summary{
		White:   summarizeSide(white, thresholds),
		Black:   summarizeSide(black, thresholds),
		Overall: WCLToAccuracy(meanOf(all, func(m Move) float64 { return m.WinProbabilityLoss })),
	}
}

func summarizeSide(moves []Move, thresholds Thresholds) Side {
	side := Side{
		Accuracy:      100,
		ACPLAccuracy:  100,
		Moves:         len(moves),
		SeverityCount: make(map[string]int),
	}
	if len(moves) == 0 {
		return side
	}
	for _, m := range moves {
		side.SeverityCount[thresholds.Classify(m.CentipawnLoss).String()]++
	}
	side.ACPL = meanOf(moves, func(m Move) float64 { return m.CentipawnLoss })
	side.ACPLAccuracy = ACPLToAccuracy(side.ACPL)
	side.Accuracy = WCLToAccuracy(meanOf(moves, func(m Move) float64 { return m.WinProbabilityLoss }))
	return side
}

func meanOf(moves []Move, value func(Move) float64) float64 {
	if len(moves) == 0 {
		return 0
	}
	xs := make([]float64, len(moves))
	for i, m := range moves {
		xs[i] = value(m)
	}
	return stat.Mean(xs, nil)
}
