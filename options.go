package coach

import (
	"go.uber.org/zap"

	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/live"
	"github.com/discochess/coach/internal/review"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/store/memstore"
)

// Option configures a Client.
type Option interface {
	apply(*options)
}

// options holds the client configuration.
type options struct {
	launcher   engine.Launcher
	engineOpts []engine.Option
	reviewOpts []review.Option
	liveOpts   []live.Option
	store      store.Store
	stats      stats.Collector
	logger     *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		store:  memstore.New(),
		stats:  stats.NewNoop(),
		logger: zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithEnginePath runs the engine binary at path with args.
func WithEnginePath(path string, args ...string) Option {
	return optionFunc(func(o *options) {
		o.launcher = &engine.ExecLauncher{Path: path, Args: args}
	})
}

// WithLauncher sets how engine processes are spawned.
func WithLauncher(l engine.Launcher) Option {
	return optionFunc(func(o *options) {
		o.launcher = l
	})
}

// WithEngineOptions configures the engine supervisor.
func WithEngineOptions(opts ...engine.Option) Option {
	return optionFunc(func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	})
}

// WithReviewOptions configures batch game review.
func WithReviewOptions(opts ...review.Option) Option {
	return optionFunc(func(o *options) {
		o.reviewOpts = append(o.reviewOpts, opts...)
	})
}

// WithLiveOptions configures live sessions.
func WithLiveOptions(opts ...live.Option) Option {
	return optionFunc(func(o *options) {
		o.liveOpts = append(o.liveOpts, opts...)
	})
}

// WithStore sets the storage backend to use.
// If not set, an in-memory store is used.
func WithStore(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.store = s
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
