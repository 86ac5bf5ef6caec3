package uci

import (
	"sort"
	"strconv"
	"strings"

	"github.com/discochess/coach/internal/fen"
)

// State is the parser's position in a search.
type State int

const (
	// StateIdle means no search is running.
	StateIdle State = iota
	// StateSearching means "go" was sent and info lines are collected.
	StateSearching
	// StateStopping means "stop" was sent and only "bestmove" is awaited,
	// though late info lines are still collected.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Parser turns engine output for one search into a Result.
// A Parser is not safe for concurrent use.
type Parser struct {
	state       State
	fen         string
	blackToMove bool
	lines       map[int]Line
}

// NewParser returns an idle parser.
func NewParser() *Parser {
	return &Parser{lines: make(map[int]Line)}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// Begin starts collecting output for a search of position.
func (p *Parser) Begin(position string) error {
	if p.state != StateIdle {
		return ErrBusy
	}
	white, err := fen.WhiteToMove(position)
	if err != nil {
		return err
	}
	p.state = StateSearching
	p.fen = position
	p.blackToMove = !white
	clear(p.lines)
	return nil
}

// Stopping records that "stop" was sent for the running search.
func (p *Parser) Stopping() {
	if p.state == StateSearching {
		p.state = StateStopping
	}
}

// Reset abandons the running search, if any.
func (p *Parser) Reset() {
	p.state = StateIdle
	p.fen = ""
	clear(p.lines)
}

// Feed consumes one line of engine output. It returns the finished result
// when the line is "bestmove". Unrecognized lines are ignored.
func (p *Parser) Feed(raw string) (*Result, bool) {
	if p.state == StateIdle {
		return nil, false
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, false
	}

	switch fields[0] {
	case "info":
		if line, ok := p.parseInfo(fields[1:]); ok {
			p.lines[line.MultiPVIndex] = line
		}
		return nil, false
	case replyBestMove:
		return p.finish(fields[1:]), true
	default:
		return nil, false
	}
}

func (p *Parser) finish(fields []string) *Result {
	res := &Result{
		FEN:        p.fen,
		IsComplete: p.state == StateSearching,
	}
	if len(fields) > 0 && fields[0] != "(none)" && fields[0] != "0000" {
		res.BestMove = fields[0]
	}
	if len(fields) > 2 && fields[1] == "ponder" {
		res.Ponder = fields[2]
	}

	indexes := make([]int, 0, len(p.lines))
	for idx := range p.lines {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	res.Lines = make([]Line, 0, len(indexes))
	for _, idx := range indexes {
		res.Lines = append(res.Lines, p.lines[idx])
	}

	// Some engines emit the primary line without a pv; fall back to the
	// bestmove so the chosen evaluation always names its move.
	if len(res.Lines) > 0 && res.Lines[0].BestMove == "" && res.BestMove != "" {
		res.Lines[0].BestMove = res.BestMove
		res.Lines[0].PrincipalVariation = []string{res.BestMove}
	}

	p.Reset()
	return res
}

// parseInfo extracts a scored line from the fields following "info".
// Lines without a score, and bound-only scores, are not reported.
func (p *Parser) parseInfo(fields []string) (Line, bool) {
	line := Line{MultiPVIndex: 1}
	var (
		scored  bool
		mate    bool
		value   int
		bounded bool
	)

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if n, ok := intAt(fields, i+1); ok {
				line.Depth = n
				i++
			}
		case "multipv":
			if n, ok := intAt(fields, i+1); ok && n > 0 {
				line.MultiPVIndex = n
				i++
			}
		case "score":
			if i+2 >= len(fields) {
				return Line{}, false
			}
			n, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return Line{}, false
			}
			switch fields[i+1] {
			case "cp":
				mate = false
			case "mate":
				mate = true
			default:
				return Line{}, false
			}
			value = n
			scored = true
			i += 2
			if i+1 < len(fields) && (fields[i+1] == "lowerbound" || fields[i+1] == "upperbound") {
				bounded = true
				i++
			}
		case "pv":
			line.PrincipalVariation = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		case "string":
			// Free text until end of line.
			return Line{}, false
		}
	}

	if !scored || bounded {
		return Line{}, false
	}

	if len(line.PrincipalVariation) > 0 {
		line.BestMove = line.PrincipalVariation[0]
	}

	sign := 1
	if p.blackToMove {
		sign = -1
	}
	if mate {
		moves := value * sign
		line.Mate = &moves
		line.EvaluationCp = sign * mateToCentipawns(value)
	} else {
		line.EvaluationCp = sign * value
	}
	return line, true
}

// mateToCentipawns folds a side-to-move relative mate distance into the
// centipawn scale. "mate 0" means the side to move is already mated.
func mateToCentipawns(n int) int {
	switch {
	case n > 0:
		return MateScore - n
	case n < 0:
		return -MateScore - n
	default:
		return -MateScore
	}
}

func intAt(fields []string, i int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return n, true
}
