// Package coach analyzes chess games with a supervised UCI engine.
//
// A Client owns one engine process. Whole games are reviewed move by move
// in batch, single positions are evaluated on demand, and live sessions
// stream the analysis of the positions a user explores.
//
// Example usage:
//
//	client, err := coach.New(
//	    coach.WithEnginePath("stockfish"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	eval, err := client.Evaluate(ctx, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", coach.EvalOptions{Depth: 20})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Evaluation: %s\n", eval.Score())
package coach

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/fen"
	"github.com/discochess/coach/internal/live"
	"github.com/discochess/coach/internal/replay"
	"github.com/discochess/coach/internal/review"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/uci"
)

// Sentinel errors for well-defined error conditions. They are the values
// returned by the underlying packages and can be matched with errors.Is.
var (
	ErrEngineStartupFailed = engine.ErrEngineStartupFailed
	ErrEngineUnresponsive  = engine.ErrEngineUnresponsive
	ErrEngineUnavailable   = engine.ErrEngineUnavailable
	ErrAnalysisTimeout     = engine.ErrAnalysisTimeout
	ErrSuperseded          = engine.ErrSuperseded
	ErrInvalidPosition     = fen.ErrInvalidFEN
	ErrInvalidPGN          = replay.ErrInvalidPGN
	ErrIllegalMove         = replay.ErrIllegalMove
	ErrSessionNotFound     = live.ErrSessionNotFound
	ErrSessionClosed       = live.ErrSessionClosed
	ErrGameNotFound        = store.ErrNotFound
	ErrAnalysisInProgress  = review.ErrAnalysisInProgress

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("coach: client closed")

	// ErrNoEngine indicates no engine was configured.
	ErrNoEngine = errors.New("coach: no engine configured")
)

// Client analyzes games and positions. A Client is safe for concurrent
// use by multiple goroutines.
type Client struct {
	engine   *engine.Supervisor
	analyzer *review.Analyzer
	sessions *live.Manager
	store    store.Store
	stats    stats.Collector
	logger   *zap.Logger
	closed   atomic.Bool
}

// New creates a Client. The engine is not launched until Start.
func New(opts ...Option) (*Client, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.launcher == nil {
		return nil, ErrNoEngine
	}

	engineOpts := append([]engine.Option{
		engine.WithStats(cfg.stats),
		engine.WithLogger(cfg.logger.Named("engine")),
	}, cfg.engineOpts...)
	reviewOpts := append([]review.Option{
		review.WithStats(cfg.stats),
		review.WithLogger(cfg.logger.Named("review")),
	}, cfg.reviewOpts...)
	liveOpts := append([]live.Option{
		live.WithStats(cfg.stats),
		live.WithLogger(cfg.logger.Named("live")),
	}, cfg.liveOpts...)

	sup := engine.New(cfg.launcher, engineOpts...)
	c := &Client{
		engine:   sup,
		analyzer: review.New(sup, cfg.store, reviewOpts...),
		sessions: live.New(sup, liveOpts...),
		store:    cfg.store,
		stats:    cfg.stats,
		logger:   cfg.logger,
	}
	sup.OnStateChange(c.sessions.BroadcastEngineStatus)

	c.logger.Debug("client initialized")
	return c, nil
}

// Start launches the engine and completes the UCI handshake. A failed
// start leaves the engine failed until Reset.
func (c *Client) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.engine.Start(ctx); err != nil {
		return err
	}
	id := c.engine.State().Identity
	c.logger.Info("engine ready", zap.String("name", id.Name), zap.String("author", id.Author))
	return nil
}

// EvalOptions control a single evaluation. Zero fields use the engine
// defaults.
type EvalOptions struct {
	Depth     int
	MultiPV   int
	TimeLimit time.Duration
}

// Evaluate analyzes a single position at batch priority.
func (c *Client) Evaluate(ctx context.Context, position string, opts EvalOptions) (*Evaluation, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	res, err := c.engine.Analyze(ctx, engine.Job{
		FEN: position,
		Options: uci.SearchOptions{
			Depth:   opts.Depth,
			MultiPV: opts.MultiPV,
		},
		TimeLimit: opts.TimeLimit,
		Origin:    engine.OriginBatch,
	})
	if err != nil {
		return nil, err
	}
	return resultToEvaluation(res), nil
}

// ImportGame stores a PGN as a game and returns it. The PGN must replay.
func (c *Client) ImportGame(ctx context.Context, pgn, source string) (*store.Game, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	game, err := replay.FromPGN(pgn)
	if err != nil {
		return nil, err
	}
	g := &store.Game{
		ID:         uuid.NewString(),
		PGN:        pgn,
		White:      game.Tags["White"],
		Black:      game.Tags["Black"],
		Result:     game.Result,
		Source:     source,
		ImportedAt: time.Now().UTC(),
	}
	if err := c.store.PutGame(ctx, g); err != nil {
		return nil, fmt.Errorf("storing game: %w", err)
	}
	return g, nil
}

// Game returns a stored game.
func (c *Client) Game(ctx context.Context, id string) (*store.Game, error) {
	return c.store.Game(ctx, id)
}

// AnalyzeGame reviews a stored game and stores the analysis.
func (c *Client) AnalyzeGame(ctx context.Context, gameID string, opts review.Options) (*review.Report, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.analyzer.AnalyzeGame(ctx, gameID, opts)
}

// AnalyzePGN reviews a game given as PGN without storing it.
func (c *Client) AnalyzePGN(ctx context.Context, pgn string, opts review.Options) (*review.Report, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.analyzer.AnalyzePGN(ctx, "", pgn, opts)
}

// Analysis returns the stored analysis of a game.
func (c *Client) Analysis(ctx context.Context, gameID string) (*store.Analysis, error) {
	return c.store.Analysis(ctx, gameID)
}

// AnalysisStatus reports whether a game is being analyzed and what is
// stored for it.
func (c *Client) AnalysisStatus(ctx context.Context, gameID string) (review.Status, error) {
	return c.analyzer.Status(ctx, gameID)
}

// DeleteAnalysis removes the stored analysis of a game.
func (c *Client) DeleteAnalysis(ctx context.Context, gameID string) error {
	return c.analyzer.DeleteAnalysis(ctx, gameID)
}

// Sessions returns the live session manager.
func (c *Client) Sessions() *live.Manager {
	return c.sessions
}

// LegalMoves lists the legal moves of a position for the live explorer.
func (c *Client) LegalMoves(position string) ([]replay.Move, error) {
	return replay.LegalMoves(position)
}

// EngineStatus summarizes the engine for clients.
type EngineStatus struct {
	Ready   bool         `json:"engineReady"`
	Type    string       `json:"engineType"`
	Version string       `json:"version"`
	State   engine.State `json:"state"`
}

// EngineStatus returns the current engine status.
func (c *Client) EngineStatus() EngineStatus {
	st := c.engine.State()
	return EngineStatus{
		Ready:   st.Status == engine.StatusReady || st.Status == engine.StatusBusy,
		Type:    st.Identity.Type(),
		Version: st.Identity.Version(),
		State:   st,
	}
}

// CheckEngine probes the engine with "isready".
func (c *Client) CheckEngine(ctx context.Context) error {
	return c.engine.EnsureHealthy(ctx)
}

// RestartEngine replaces the engine process.
func (c *Client) RestartEngine(ctx context.Context) error {
	return c.engine.Restart(ctx)
}

// ResetEngine clears a failed engine and starts it again.
func (c *Client) ResetEngine(ctx context.Context) error {
	return c.engine.Reset(ctx)
}

// Store returns the storage backend used by this client.
func (c *Client) Store() store.Store {
	return c.store
}

// Close ends all live sessions, stops the engine and closes the store.
// After Close, the client should not be used.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	var errs []error
	if err := c.sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing sessions: %w", err))
	}
	if err := c.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stopping engine: %w", err))
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}
