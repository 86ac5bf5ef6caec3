// Package uci implements the client side of the Universal Chess Interface.
//
// Commands are encoded as single text lines. Engine output is parsed by a
// small state machine keyed by MultiPV index, and every score leaving this
// package is expressed from White's point of view.
package uci

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// MateScore is the centipawn magnitude used for forced mates. A mate in n
// is reported as MateScore-n with the sign of the side delivering it.
const MateScore = 10000

// Sentinel errors returned by the client.
var (
	// ErrClosed indicates the engine output stream ended.
	ErrClosed = errors.New("uci: engine stream closed")

	// ErrTimeout indicates an expected reply did not arrive in time.
	ErrTimeout = errors.New("uci: timed out waiting for engine")

	// ErrSearchTimeout indicates a search exceeded its bound and was
	// stopped. The engine acknowledged the stop.
	ErrSearchTimeout = errors.New("uci: search exceeded time bound")

	// ErrUnresponsive indicates the engine did not acknowledge a stop.
	ErrUnresponsive = errors.New("uci: engine unresponsive")

	// ErrBusy indicates a search was requested while another one runs.
	ErrBusy = errors.New("uci: search already in progress")
)

// SearchOptions controls a single search.
type SearchOptions struct {
	// Depth is the maximum search depth in plies. Zero means no depth limit.
	Depth int

	// MoveTime bounds the search duration. Zero means no time limit.
	MoveTime time.Duration

	// MultiPV is the number of candidate lines to report. Values below one
	// are treated as one.
	MultiPV int
}

// Identity is what the engine reports about itself during the handshake.
type Identity struct {
	Name   string `json:"name"`
	Author string `json:"author,omitempty"`
}

// Type returns the engine name without a trailing version token.
func (id Identity) Type() string {
	name, _ := id.split()
	return name
}

// Version returns the trailing version token of the engine name, if any.
func (id Identity) Version() string {
	_, version := id.split()
	return version
}

func (id Identity) split() (string, string) {
	fields := strings.Fields(id.Name)
	if len(fields) < 2 {
		return id.Name, ""
	}
	last := fields[len(fields)-1]
	if last[0] >= '0' && last[0] <= '9' || last == "dev" || strings.HasPrefix(last, "dev-") {
		return strings.Join(fields[:len(fields)-1], " "), last
	}
	return id.Name, ""
}

// Line is one candidate line from a MultiPV search.
type Line struct {
	// EvaluationCp is the score in centipawns from White's perspective.
	// Forced mates are folded into ±MateScore.
	EvaluationCp int `json:"evaluationCp"`

	// Mate is the distance to mate in moves from White's perspective.
	// Positive values mean White mates. Nil if there is no forced mate.
	Mate *int `json:"mate,omitempty"`

	// BestMove is the first move of the line in UCI notation.
	BestMove string `json:"bestMove"`

	// PrincipalVariation is the full line in UCI notation.
	PrincipalVariation []string `json:"principalVariation"`

	Depth        int `json:"depth"`
	MultiPVIndex int `json:"multiPvIndex"`
}

// Score returns a human-readable score string such as "+1.25" or "#-3".
func (l Line) Score() string {
	if l.Mate != nil {
		return "#" + strconv.Itoa(*l.Mate)
	}
	cp := l.EvaluationCp
	sign := "+"
	if cp < 0 {
		sign = "-"
		cp = -cp
	}
	return sign + strconv.Itoa(cp/100) + "." + twoDigits(cp%100)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Result is the aggregate of one finished search.
type Result struct {
	FEN string `json:"fen"`

	// Lines are ordered by MultiPV index. The first line is the engine's
	// chosen evaluation.
	Lines []Line `json:"lines"`

	// BestMove is the move from the "bestmove" line, empty when the
	// position has no legal moves.
	BestMove string `json:"bestMove,omitempty"`
	Ponder   string `json:"ponder,omitempty"`

	AnalysisTimeMs int64 `json:"analysisTimeMs"`

	// IsComplete is false when the search was cut short by a stop.
	IsComplete bool `json:"isComplete"`
}

// Best returns the first line, or nil if the engine reported none.
func (r *Result) Best() *Line {
	if r == nil || len(r.Lines) == 0 {
		return nil
	}
	return &r.Lines[0]
}

// LineFor returns the line starting with move, or nil.
func (r *Result) LineFor(move string) *Line {
	if r == nil {
		return nil
	}
	for i := range r.Lines {
		if r.Lines[i].BestMove == move {
			return &r.Lines[i]
		}
	}
	return nil
}
