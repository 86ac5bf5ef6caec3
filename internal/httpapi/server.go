// Package httpapi serves the analysis API over HTTP, with live sessions
// streamed as server-sent events.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/live"
	"github.com/discochess/coach/internal/replay"
	"github.com/discochess/coach/internal/review"
	"github.com/discochess/coach/internal/store"
)

// Backend is what the API serves. *coach.Client implements it.
type Backend interface {
	ImportGame(ctx context.Context, pgn, source string) (*store.Game, error)
	Game(ctx context.Context, id string) (*store.Game, error)
	AnalyzeGame(ctx context.Context, gameID string, opts review.Options) (*review.Report, error)
	Analysis(ctx context.Context, gameID string) (*store.Analysis, error)
	AnalysisStatus(ctx context.Context, gameID string) (review.Status, error)
	DeleteAnalysis(ctx context.Context, gameID string) error
	Evaluate(ctx context.Context, fen string, opts coach.EvalOptions) (*coach.Evaluation, error)
	LegalMoves(fen string) ([]replay.Move, error)
	Sessions() *live.Manager
	EngineStatus() coach.EngineStatus
	ResetEngine(ctx context.Context) error
}

// Compile-time check that the client implements Backend.
var _ Backend = (*coach.Client)(nil)

// Option configures the handler.
type Option interface {
	apply(*options)
}

type options struct {
	metrics http.Handler
	retry   time.Duration
	logger  *zap.Logger
}

func defaultOptions() options {
	return options{
		retry:  time.Second,
		logger: zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return optionFunc(func(o *options) {
		o.metrics = h
	})
}

// WithRetry sets the reconnect delay advertised to stream clients.
// Non-positive values keep the default of 1s.
func WithRetry(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.retry = d
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

type server struct {
	backend Backend
	opts    options
	logger  *zap.Logger
}

// New returns the API handler.
func New(backend Backend, opts ...Option) http.Handler {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	s := &server{backend: backend, opts: o, logger: o.logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /games", s.importGame)
	mux.HandleFunc("GET /games/{id}", s.game)

	mux.HandleFunc("POST /analysis/games/{id}/analyze", s.analyzeGame)
	mux.HandleFunc("GET /analysis/games/{id}/analysis", s.analysis)
	mux.HandleFunc("GET /analysis/games/{id}/analysis/status", s.analysisStatus)
	mux.HandleFunc("DELETE /analysis/games/{id}/analysis", s.deleteAnalysis)
	mux.HandleFunc("POST /analysis/evaluate", s.evaluate)

	mux.HandleFunc("POST /analysis/live/session", s.createSession)
	mux.HandleFunc("DELETE /analysis/live/session", s.closeSession)
	mux.HandleFunc("GET /analysis/live/stream/{sessionId}", s.stream)
	mux.HandleFunc("POST /analysis/live/analyze", s.analyzeLive)
	mux.HandleFunc("PUT /analysis/live/settings", s.updateSettings)
	mux.HandleFunc("GET /analysis/live/legal-moves", s.legalMoves)

	mux.HandleFunc("GET /analysis/engine/status", s.engineStatus)
	mux.HandleFunc("POST /analysis/engine/reset", s.resetEngine)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if o.metrics != nil {
		mux.Handle("GET /metrics", o.metrics)
	}
	return s.logRequests(mux)
}
