// Package memstore provides an in-memory store implementation.
package memstore

import (
	"context"
	"sync"

	"github.com/discochess/coach/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store is an in-memory store. Values are copied on the way in and out so
// callers cannot mutate stored state.
type Store struct {
	mu       sync.RWMutex
	games    map[string]store.Game
	analyses map[string]*store.Analysis
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		games:    make(map[string]store.Game),
		analyses: make(map[string]*store.Analysis),
	}
}

// Game returns a game.
func (s *Store) Game(ctx context.Context, id string) (*store.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

// PutGame stores a game.
func (s *Store) PutGame(ctx context.Context, g *store.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = *g
	return nil
}

// Analysis returns a game's analysis.
func (s *Store) Analysis(ctx context.Context, gameID string) (*store.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.analyses[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a.Clone(), nil
}

// ReplaceAnalysis stores a game's analysis.
func (s *Store) ReplaceAnalysis(ctx context.Context, a *store.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.GameID] = a.Clone()
	return nil
}

// DeleteAnalysis removes a game's analysis.
func (s *Store) DeleteAnalysis(ctx context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.analyses, gameID)
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}
