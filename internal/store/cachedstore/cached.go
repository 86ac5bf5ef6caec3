// Package cachedstore provides a read-through LRU cache over a Store.
package cachedstore

import (
	"context"
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int // Current number of entries
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Store wraps another Store with caching. Writes go through to the
// underlying store and refresh the cache.
type Store struct {
	underlying store.Store
	games      *lru.Cache[string, store.Game]
	analyses   *lru.Cache[string, *store.Analysis]
	collector  stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cached store holding up to capacity games and capacity
// analyses. The collector is optional; if nil, a no-op collector is used.
func New(underlying store.Store, capacity int, collector stats.Collector) (*Store, error) {
	games, err := lru.New[string, store.Game](capacity)
	if err != nil {
		return nil, err
	}
	analyses, err := lru.New[string, *store.Analysis](capacity)
	if err != nil {
		return nil, err
	}
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Store{
		underlying: underlying,
		games:      games,
		analyses:   analyses,
		collector:  collector,
	}, nil
}

// Game returns a game, checking the cache first.
func (s *Store) Game(ctx context.Context, id string) (*store.Game, error) {
	if g, ok := s.games.Get(id); ok {
		s.hit()
		return &g, nil
	}
	s.miss()

	g, err := s.underlying.Game(ctx, id)
	if err != nil {
		return nil, err
	}
	s.games.Add(id, *g)
	s.sizeChanged()
	return g, nil
}

// PutGame writes a game through to the underlying store.
func (s *Store) PutGame(ctx context.Context, g *store.Game) error {
	if err := s.underlying.PutGame(ctx, g); err != nil {
		s.games.Remove(g.ID)
		return err
	}
	s.games.Add(g.ID, *g)
	s.sizeChanged()
	return nil
}

// Analysis returns a game's analysis, checking the cache first.
func (s *Store) Analysis(ctx context.Context, gameID string) (*store.Analysis, error) {
	if a, ok := s.analyses.Get(gameID); ok {
		s.hit()
		return a.Clone(), nil
	}
	s.miss()

	a, err := s.underlying.Analysis(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	s.analyses.Add(gameID, a.Clone())
	s.sizeChanged()
	return a, nil
}

// ReplaceAnalysis writes an analysis through to the underlying store.
func (s *Store) ReplaceAnalysis(ctx context.Context, a *store.Analysis) error {
	if err := s.underlying.ReplaceAnalysis(ctx, a); err != nil {
		s.analyses.Remove(a.GameID)
		return err
	}
	s.analyses.Add(a.GameID, a.Clone())
	s.sizeChanged()
	return nil
}

// DeleteAnalysis removes an analysis from the cache and the underlying
// store.
func (s *Store) DeleteAnalysis(ctx context.Context, gameID string) error {
	s.analyses.Remove(gameID)
	s.sizeChanged()
	return s.underlying.DeleteAnalysis(ctx, gameID)
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.underlying.Close()
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Size:   s.games.Len() + s.analyses.Len(),
	}
}

func (s *Store) hit() {
	s.hits.Add(1)
	s.collector.IncCounter(stats.MetricCacheHits, 1)
}

func (s *Store) miss() {
	s.misses.Add(1)
	s.collector.IncCounter(stats.MetricCacheMisses, 1)
}

func (s *Store) sizeChanged() {
	s.collector.SetGauge(stats.MetricCacheSize, int64(s.games.Len()+s.analyses.Len()))
}
