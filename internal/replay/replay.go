// Package replay turns games into the positions the engine analyzes.
//
// Move generation and legality are delegated to github.com/notnil/chess.
package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/discochess/coach/internal/fen"
)

// ErrInvalidPGN indicates the PGN could not be parsed or replayed.
var ErrInvalidPGN = errors.New("replay: invalid PGN")

// ErrIllegalMove indicates a move that is not legal in the position.
var ErrIllegalMove = errors.New("replay: illegal move")

// Ply is one half-move of a game.
type Ply struct {
	// Number is the 1-based ply index. Odd plies are White's.
	Number int

	SAN string
	UCI string

	FENBefore string
	FENAfter  string
}

// White reports whether White made the move.
func (p Ply) White() bool {
	return p.Number%2 == 1
}

// Game is a replayed game.
type Game struct {
	Tags     map[string]string
	StartFEN string
	Plies    []Ply
	Result   string
}

// FromPGN replays a single PGN game.
func FromPGN(pgn string) (*Game, error) {
	if strings.TrimSpace(pgn) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPGN)
	}

	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPGN, err)
	}
	game := chess.NewGame(opt)

	moves := game.Moves()
	positions := game.Positions()
	if len(positions) != len(moves)+1 {
		return nil, fmt.Errorf("%w: %d positions for %d moves", ErrInvalidPGN, len(positions), len(moves))
	}

	g := &Game{
		Tags:     make(map[string]string),
		StartFEN: positions[0].String(),
		Plies:    make([]Ply, 0, len(moves)),
		Result:   game.Outcome().String(),
	}
	for _, tp := range game.TagPairs() {
		g.Tags[tp.Key] = tp.Value
	}

	// A game that starts with Black to move numbers its first ply 2 so
	// parity keeps identifying the mover.
	offset := 1
	if positions[0].Turn() == chess.Black {
		offset = 2
	}
	notation := chess.AlgebraicNotation{}
	for i, m := range moves {
		g.Plies = append(g.Plies, Ply{
			Number:    i + offset,
			SAN:       notation.Encode(positions[i], m),
			UCI:       m.String(),
			FENBefore: positions[i].String(),
			FENAfter:  positions[i+1].String(),
		})
	}
	return g, nil
}

// Move is a legal move in a position.
type Move struct {
	UCI string `json:"uci"`
	SAN string `json:"san"`
}

// LegalMoves lists the legal moves of a position.
func LegalMoves(position string) ([]Move, error) {
	game, err := load(position)
	if err != nil {
		return nil, err
	}

	pos := game.Position()
	notation := chess.AlgebraicNotation{}
	valid := game.ValidMoves()
	moves := make([]Move, 0, len(valid))
	for _, m := range valid {
		moves = append(moves, Move{UCI: m.String(), SAN: notation.Encode(pos, m)})
	}
	return moves, nil
}

// Apply plays a UCI move on a position and returns the resulting FEN.
func Apply(position, uciMove string) (string, error) {
	game, err := load(position)
	if err != nil {
		return "", err
	}

	m, err := chess.UCINotation{}.Decode(game.Position(), uciMove)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, uciMove, err)
	}
	if err := game.Move(m); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, uciMove, err)
	}
	return game.Position().String(), nil
}

// SAN converts a UCI move to standard algebraic notation.
func SAN(position, uciMove string) (string, error) {
	game, err := load(position)
	if err != nil {
		return "", err
	}
	pos := game.Position()
	m, err := chess.UCINotation{}.Decode(pos, uciMove)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, uciMove, err)
	}
	for _, valid := range game.ValidMoves() {
		if valid.String() == m.String() {
			return chess.AlgebraicNotation{}.Encode(pos, valid), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrIllegalMove, uciMove)
}

func load(position string) (*chess.Game, error) {
	if err := fen.Validate(position); err != nil {
		return nil, err
	}
	opt, err := chess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fen.ErrInvalidFEN, err)
	}
	return chess.NewGame(opt), nil
}
