// Package review analyzes whole games move by move.
//
// Every selected ply is submitted to the engine as a batch job. Results
// are turned into centipawn loss, win probability loss and a severity per
// move, and into accuracy per side.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/accuracy"
	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/replay"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/uci"
)

// ErrAnalysisInProgress indicates the game is already being analyzed.
var ErrAnalysisInProgress = errors.New("review: analysis already in progress")

// Engine is the part of the supervisor the analyzer uses.
type Engine interface {
	Submit(ctx context.Context, job engine.Job) (*engine.Future, error)
	State() engine.State
}

// Record is the analysis of one ply.
type Record = store.MoveAnalysis

// Report is the result of a game review.
type Report struct {
	GameID string `json:"gameId"`

	// TotalPositions is the number of plies in the game.
	TotalPositions int `json:"totalPositions"`

	// SelectedPositions is the number of plies chosen for analysis.
	SelectedPositions int `json:"selectedPositions"`

	// AnalyzedPositions counts records with an evaluation.
	AnalyzedPositions int `json:"analyzedPositions"`

	Records  []Record         `json:"records"`
	Accuracy accuracy.Summary `json:"accuracy"`

	// Incomplete is set when the engine became unavailable and the
	// remaining positions were abandoned.
	Incomplete bool `json:"incomplete"`
}

// Status describes the analysis state of a game.
type Status struct {
	IsAnalyzing         bool `json:"isAnalyzing"`
	HasExistingAnalysis bool `json:"hasExistingAnalysis"`
	AnalysisCount       int  `json:"analysisCount"`
}

// Analyzer runs game reviews.
type Analyzer struct {
	engine Engine
	store  store.Store
	opts   options
	logger *zap.Logger

	mu         sync.Mutex
	inProgress map[string]struct{}
}

// New creates an analyzer.
func New(eng Engine, st store.Store, opts ...Option) *Analyzer {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Analyzer{
		engine:     eng,
		store:      st,
		opts:       o,
		logger:     o.logger,
		inProgress: make(map[string]struct{}),
	}
}

// AnalyzeGame reviews a stored game and stores the result, replacing any
// previous analysis. A partial report is stored and returned when the
// engine becomes unavailable midway.
func (a *Analyzer) AnalyzeGame(ctx context.Context, gameID string, opts Options) (*Report, error) {
	g, err := a.store.Game(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", gameID, err)
	}
	return a.AnalyzePGN(ctx, gameID, g.PGN, opts)
}

// AnalyzePGN reviews a game given as PGN. The result is stored under
// gameID unless gameID is empty.
func (a *Analyzer) AnalyzePGN(ctx context.Context, gameID, pgn string, opts Options) (*Report, error) {
	game, err := replay.FromPGN(pgn)
	if err != nil {
		return nil, err
	}

	if gameID != "" {
		if !a.begin(gameID) {
			return nil, fmt.Errorf("%w: %s", ErrAnalysisInProgress, gameID)
		}
		defer a.end(gameID)
	}

	opts = opts.merge(a.opts.defaults)
	start := time.Now()
	report, err := a.analyze(ctx, gameID, game, opts)
	if err != nil {
		return nil, err
	}

	a.opts.stats.IncCounter(stats.MetricReviewGames, 1)
	a.logger.Info("game reviewed",
		zap.String("game", gameID),
		zap.Int("selected", report.SelectedPositions),
		zap.Int("analyzed", report.AnalyzedPositions),
		zap.Bool("incomplete", report.Incomplete),
		zap.Duration("elapsed", time.Since(start)),
	)

	if gameID != "" {
		err := a.store.ReplaceAnalysis(ctx, &store.Analysis{
			GameID:     gameID,
			Engine:     a.engine.State().Identity.Name,
			Moves:      report.Records,
			Incomplete: report.Incomplete,
			AnalyzedAt: time.Now().UTC(),
		})
		if err != nil {
			return report, fmt.Errorf("storing analysis: %w", err)
		}
	}
	return report, nil
}

// Status reports whether a game is being analyzed and what is stored.
func (a *Analyzer) Status(ctx context.Context, gameID string) (Status, error) {
	a.mu.Lock()
	_, running := a.inProgress[gameID]
	a.mu.Unlock()

	st := Status{IsAnalyzing: running}
	stored, err := a.store.Analysis(ctx, gameID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return st, err
	default:
		st.HasExistingAnalysis = true
		st.AnalysisCount = len(stored.Moves)
	}
	return st, nil
}

// DeleteAnalysis removes a game's stored analysis.
func (a *Analyzer) DeleteAnalysis(ctx context.Context, gameID string) error {
	if !a.begin(gameID) {
		return fmt.Errorf("%w: %s", ErrAnalysisInProgress, gameID)
	}
	defer a.end(gameID)
	return a.store.DeleteAnalysis(ctx, gameID)
}

func (a *Analyzer) begin(gameID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inProgress[gameID]; ok {
		return false
	}
	a.inProgress[gameID] = struct{}{}
	return true
}

func (a *Analyzer) end(gameID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inProgress, gameID)
}

// outcome is the engine answer for one position.
type outcome struct {
	result *uci.Result
	err    error
}

func (a *Analyzer) analyze(ctx context.Context, gameID string, game *replay.Game, opts Options) (*Report, error) {
	selected := Select(game.Plies, opts.Skip(), opts.Max())
	report := &Report{
		GameID:            gameID,
		TotalPositions:    len(game.Plies),
		SelectedPositions: len(selected),
		Records:           make([]Record, 0, len(selected)),
	}
	if len(selected) == 0 {
		report.Accuracy = accuracy.Summarize(nil, a.opts.thresholds)
		return report, nil
	}

	// Position i is the one before selected ply i; the final entry is the
	// position after the last selected ply.
	positions := make([]string, 0, len(selected)+1)
	for _, p := range selected {
		positions = append(positions, p.FENBefore)
	}
	positions = append(positions, selected[len(selected)-1].FENAfter)

	outcomes := a.run(ctx, positions, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var moves []accuracy.Move
	for i, ply := range selected {
		if errors.Is(outcomes[i].err, engine.ErrEngineUnavailable) {
			report.Incomplete = true
			a.logger.Warn("engine unavailable, abandoning review",
				zap.String("game", gameID),
				zap.Int("ply", ply.Number),
				zap.Error(outcomes[i].err),
			)
			break
		}

		rec := a.record(ply, outcomes[i], outcomes[i+1])
		report.Records = append(report.Records, rec)
		if rec.EvaluationCp == nil {
			a.opts.stats.IncCounter(stats.MetricReviewFailedPositions, 1)
			continue
		}
		a.opts.stats.IncCounter(stats.MetricReviewPositions, 1)
		report.AnalyzedPositions++
		moves = append(moves, accuracy.Move{
			MoveNumber:         rec.MoveNumber,
			CentipawnLoss:      float64(*rec.CentipawnLoss),
			WinProbabilityLoss: *rec.WinProbabilityLoss,
		})
	}

	report.Accuracy = accuracy.Summarize(moves, a.opts.thresholds)
	return report, nil
}

// run submits every position and collects the outcomes in order.
func (a *Analyzer) run(ctx context.Context, positions []string, opts Options) []outcome {
	outcomes := make([]outcome, len(positions))
	futures := make([]*engine.Future, len(positions))

	for i, position := range positions {
		f, err := a.engine.Submit(ctx, engine.Job{
			FEN: position,
			Options: uci.SearchOptions{
				Depth:   opts.Depth,
				MultiPV: opts.MultiPV,
			},
			TimeLimit: opts.TimeLimit,
			Origin:    engine.OriginBatch,
			NewGame:   i == 0,
		})
		if err != nil {
			outcomes[i].err = err
			if errors.Is(err, engine.ErrEngineUnavailable) {
				for j := i + 1; j < len(positions); j++ {
					outcomes[j].err = err
				}
				break
			}
			continue
		}
		futures[i] = f
	}

	for i, f := range futures {
		if f == nil {
			continue
		}
		res, err := f.Wait(ctx)
		if ctx.Err() != nil {
			for _, rest := range futures[i:] {
				if rest != nil {
					rest.Cancel()
				}
			}
			return outcomes
		}
		outcomes[i] = outcome{result: res, err: err}
	}
	return outcomes
}

// record derives the analysis of ply from the outcome of the position
// before it and the position after it.
func (a *Analyzer) record(ply replay.Ply, before, after outcome) Record {
	rec := Record{
		MoveNumber:      ply.Number,
		PlayerMove:      ply.SAN,
		PlayerMoveUCI:   ply.UCI,
		MistakeSeverity: accuracy.Excellent.String(),
	}

	if before.err != nil {
		rec.Error = before.err.Error()
		return rec
	}
	best := before.result.Best()
	if best == nil {
		rec.Error = "engine returned no evaluation"
		return rec
	}
	playerEval, err := playerEvaluation(ply, before.result, after)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	bestEval := best.EvaluationCp
	sign := 1
	if !ply.White() {
		sign = -1
	}
	loss := max(0, sign*(bestEval-playerEval))
	wpl := accuracy.WinProbabilityLoss(float64(loss), float64(bestEval), ply.Number)

	rec.EvaluationCp = &bestEval
	rec.CentipawnLoss = &loss
	rec.WinProbabilityLoss = &wpl
	rec.BestMove = best.BestMove
	if san, err := replay.SAN(ply.FENBefore, best.BestMove); err == nil {
		rec.BestMove = san
	}
	rec.BestLine = best.PrincipalVariation
	rec.AnalysisDepth = best.Depth
	rec.MistakeSeverity = a.opts.thresholds.Classify(float64(loss)).String()
	return rec
}

// playerEvaluation returns the White-perspective evaluation of the move
// actually played.
func playerEvaluation(ply replay.Ply, before *uci.Result, after outcome) (int, error) {
	if ply.UCI == before.BestMove {
		return before.Best().EvaluationCp, nil
	}
	if line := before.LineFor(ply.UCI); line != nil {
		return line.EvaluationCp, nil
	}
	if after.err != nil {
		return 0, fmt.Errorf("evaluating played move: %w", after.err)
	}
	if best := after.result.Best(); best != nil {
		return best.EvaluationCp, nil
	}
	// The game ended with the move.
	if ply.White() && isMate(ply.SAN) {
		return uci.MateScore, nil
	}
	if isMate(ply.SAN) {
		return -uci.MateScore, nil
	}
	return 0, nil
}

func isMate(san string) bool {
	return len(san) > 0 && san[len(san)-1] == '#'
}
