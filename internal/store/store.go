// Package store defines persistence for games and their analysis.
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a game or analysis does not exist.
var ErrNotFound = errors.New("store: not found")

// Store defines the interface for storage backends.
type Store interface {
	// Game returns a stored game.
	Game(ctx context.Context, id string) (*Game, error)

	// PutGame creates or replaces a game.
	PutGame(ctx context.Context, g *Game) error

	// Analysis returns the stored analysis of a game.
	Analysis(ctx context.Context, gameID string) (*Analysis, error)

	// ReplaceAnalysis stores a game's analysis, replacing any previous one.
	ReplaceAnalysis(ctx context.Context, a *Analysis) error

	// DeleteAnalysis removes a game's analysis. Deleting a missing
	// analysis is not an error.
	DeleteAnalysis(ctx context.Context, gameID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Game is a stored game.
type Game struct {
	ID         string    `json:"id"`
	PGN        string    `json:"pgn"`
	White      string    `json:"white,omitempty"`
	Black      string    `json:"black,omitempty"`
	Result     string    `json:"result,omitempty"`
	Source     string    `json:"source,omitempty"`
	ImportedAt time.Time `json:"importedAt"`
}

// MoveAnalysis is the stored analysis of one ply.
type MoveAnalysis struct {
	MoveNumber         int      `json:"moveNumber"`
	PlayerMove         string   `json:"playerMove"`
	PlayerMoveUCI      string   `json:"playerMoveUci"`
	EvaluationCp       *int     `json:"evaluationCp"`
	BestMove           string   `json:"bestMove,omitempty"`
	BestLine           []string `json:"bestLine,omitempty"`
	MistakeSeverity    string   `json:"mistakeSeverity"`
	CentipawnLoss      *int     `json:"centipawnLoss"`
	WinProbabilityLoss *float64 `json:"winProbabilityLoss"`
	AnalysisDepth      int      `json:"analysisDepth"`
	Error              string   `json:"error,omitempty"`
}

// Analysis is the stored analysis of a game.
type Analysis struct {
	GameID     string         `json:"gameId"`
	Engine     string         `json:"engine,omitempty"`
	Moves      []MoveAnalysis `json:"moves"`
	Incomplete bool           `json:"incomplete"`
	AnalyzedAt time.Time      `json:"analyzedAt"`
}

// Clone returns a deep copy of a.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Moves = make([]MoveAnalysis, len(a.Moves))
	for i, m := range a.Moves {
		m.BestLine = slices.Clone(m.BestLine)
		m.EvaluationCp = clonePtr(m.EvaluationCp)
		m.CentipawnLoss = clonePtr(m.CentipawnLoss)
		m.WinProbabilityLoss = clonePtr(m.WinProbabilityLoss)
		c.Moves[i] = m
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
