package coach

import (
	"slices"
	"strings"
	"time"

	"github.com/discochess/coach/internal/uci"
)

// Evaluation is the engine's verdict on one position.
type Evaluation struct {
	// FEN is the position in Forsyth-Edwards Notation.
	FEN string

	// Depth is the search depth reached by the best line.
	Depth int

	// BestMove is the engine's chosen move in UCI notation, empty when the
	// position has no legal moves.
	BestMove string

	// Elapsed is how long the search ran.
	Elapsed time.Duration

	// Complete is false when the search was cut short.
	Complete bool

	// Lines holds the engine's candidate lines in MultiPV order. The first
	// is the line the engine plays.
	Lines []PV
}

// PV is one candidate line of a search, scored from White's perspective.
type PV struct {
	// Centipawns is the score in centipawns. Forced mates are folded into
	// plus or minus uci.MateScore.
	Centipawns int

	// Mate is the distance to mate in moves, positive when White mates.
	// Nil if there is no forced mate.
	Mate *int

	// Moves is the principal variation in UCI notation.
	Moves []string

	// Depth is the depth the line was searched to.
	Depth int
}

// Best returns the engine's chosen line, or nil if it reported none.
func (e *Evaluation) Best() *PV {
	if len(e.Lines) == 0 {
		return nil
	}
	return &e.Lines[0]
}

// Line returns the candidate line starting with move, or nil.
func (e *Evaluation) Line(move string) *PV {
	for i := range e.Lines {
		if pv := &e.Lines[i]; len(pv.Moves) > 0 && pv.Moves[0] == move {
			return pv
		}
	}
	return nil
}

// Score formats the best line's score, or "?" when there is none.
func (e *Evaluation) Score() string {
	if pv := e.Best(); pv != nil {
		return pv.Score()
	}
	return "?"
}

// Score formats the line's score as "+1.25" or "#-3".
func (pv PV) Score() string {
	return uci.Line{EvaluationCp: pv.Centipawns, Mate: pv.Mate}.Score()
}

// Line returns the principal variation as space-separated moves.
func (pv PV) Line() string {
	return strings.Join(pv.Moves, " ")
}

// resultToEvaluation converts a search result to a public Evaluation.
func resultToEvaluation(r *uci.Result) *Evaluation {
	eval := &Evaluation{
		FEN:      r.FEN,
		BestMove: r.BestMove,
		Elapsed:  time.Duration(r.AnalysisTimeMs) * time.Millisecond,
		Complete: r.IsComplete,
		Lines:    make([]PV, len(r.Lines)),
	}
	if best := r.Best(); best != nil {
		eval.Depth = best.Depth
	}
	for i, l := range r.Lines {
		pv := PV{
			Centipawns: l.EvaluationCp,
			Moves:      slices.Clone(l.PrincipalVariation),
			Depth:      l.Depth,
		}
		if l.Mate != nil {
			mate := *l.Mate
			pv.Mate = &mate
		}
		eval.Lines[i] = pv
	}
	return eval
}
