package review

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/accuracy"
	"github.com/discochess/coach/internal/stats"
)

// Options control one game review.
type Options struct {
	// Depth is the search depth per position. Zero uses the default.
	Depth int `json:"depth" yaml:"depth"`

	// SkipOpeningMoves skips plies numbered at or below it. Nil uses the
	// default; an explicit zero skips nothing.
	SkipOpeningMoves *int `json:"skipOpeningMoves,omitempty" yaml:"skip_opening_moves"`

	// MaxPositions caps the number of analyzed plies. Nil uses the
	// default; an explicit zero means no cap.
	MaxPositions *int `json:"maxPositions,omitempty" yaml:"max_positions"`

	// MultiPV is the number of candidate lines per position. Zero uses
	// the default.
	MultiPV int `json:"multiPv,omitempty" yaml:"multipv"`

	// TimeLimit bounds each search. Zero uses the default.
	TimeLimit time.Duration `json:"timeLimit,omitempty" yaml:"time_limit"`
}

// DefaultOptions returns the default review options.
func DefaultOptions() Options {
	return Options{
		Depth:            18,
		SkipOpeningMoves: Int(0),
		MaxPositions:     Int(0),
		MultiPV:          3,
		TimeLimit:        10 * time.Second,
	}
}

// Int returns a pointer to n, for the optional window fields.
func Int(n int) *int { return &n }

// Skip returns the number of opening plies to skip.
func (o Options) Skip() int {
	if o.SkipOpeningMoves == nil || *o.SkipOpeningMoves < 0 {
		return 0
	}
	return *o.SkipOpeningMoves
}

// Max returns the ply cap, zero for none.
func (o Options) Max() int {
	if o.MaxPositions == nil || *o.MaxPositions < 0 {
		return 0
	}
	return *o.MaxPositions
}

// merge fills unset fields of o from defaults.
func (o Options) merge(defaults Options) Options {
	if o.Depth <= 0 {
		o.Depth = defaults.Depth
	}
	if o.SkipOpeningMoves == nil {
		o.SkipOpeningMoves = Int(defaults.Skip())
	}
	if o.MaxPositions == nil {
		o.MaxPositions = Int(defaults.Max())
	}
	if o.MultiPV <= 0 {
		o.MultiPV = defaults.MultiPV
	}
	if o.TimeLimit <= 0 {
		o.TimeLimit = defaults.TimeLimit
	}
	return o
}

// Option configures an Analyzer.
type Option interface {
	apply(*options)
}

type options struct {
	defaults   Options
	thresholds accuracy.Thresholds
	stats      stats.Collector
	logger     *zap.Logger
}

func defaultOptions() options {
	return options{
		defaults:   DefaultOptions(),
		thresholds: accuracy.DefaultThresholds(),
		stats:      stats.NewNoop(),
		logger:     zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithDefaults sets the options used for fields a request leaves unset.
func WithDefaults(d Options) Option {
	return optionFunc(func(o *options) {
		o.defaults = d.merge(DefaultOptions())
	})
}

// WithThresholds sets the severity thresholds.
func WithThresholds(t accuracy.Thresholds) Option {
	return optionFunc(func(o *options) {
		o.thresholds = t
	})
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
