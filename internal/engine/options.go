package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/stats"
)

// Option configures a Supervisor.
type Option interface {
	apply(*options)
}

// options holds the supervisor configuration.
type options struct {
	startupTimeout    time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	searchGrace       time.Duration
	killGrace         time.Duration
	maxRestarts       int
	restartWindow     time.Duration
	defaultTimeLimit  time.Duration
	hashMB            int
	threads           int
	engineOptions     map[string]string
	listeners         []func(State)
	stats             stats.Collector
	logger            *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		startupTimeout:    10 * time.Second,
		heartbeatInterval: 30 * time.Second,
		heartbeatTimeout:  5 * time.Second,
		searchGrace:       2 * time.Second,
		killGrace:         2 * time.Second,
		maxRestarts:       5,
		restartWindow:     10 * time.Minute,
		defaultTimeLimit:  30 * time.Second,
		stats:             stats.NewNoop(),
		logger:            zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStartupTimeout bounds spawning plus the UCI handshake.
// Default is 10s.
func WithStartupTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.startupTimeout = d
	})
}

// WithHeartbeat sets how often an idle engine is probed with "isready"
// and how long it has to answer. An interval of zero disables probing.
// Defaults are 30s and 5s.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return optionFunc(func(o *options) {
		o.heartbeatInterval = interval
		o.heartbeatTimeout = timeout
	})
}

// WithSearchGrace sets how long a search may overrun its time limit, and
// how long the engine has to acknowledge "stop", before it is presumed
// hung. Default is 2s.
func WithSearchGrace(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.searchGrace = d
	})
}

// WithKillGrace sets how long the process gets to exit after "quit" and
// again after SIGTERM before it is killed. Default is 2s.
func WithKillGrace(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.killGrace = d
	})
}

// WithRestartPolicy sets the restart budget. The engine fails permanently
// when max failures happen within window. Defaults are 5 and 10m.
func WithRestartPolicy(max int, window time.Duration) Option {
	return optionFunc(func(o *options) {
		o.maxRestarts = max
		o.restartWindow = window
	})
}

// WithDefaultTimeLimit sets the time limit for jobs that carry none.
// Default is 30s.
func WithDefaultTimeLimit(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.defaultTimeLimit = d
	})
}

// WithHash sets the engine hash table size in megabytes.
// Zero leaves the engine default.
func WithHash(mb int) Option {
	return optionFunc(func(o *options) {
		o.hashMB = mb
	})
}

// WithThreads sets the engine search thread count.
// Zero leaves the engine default.
func WithThreads(n int) Option {
	return optionFunc(func(o *options) {
		o.threads = n
	})
}

// WithEngineOption sets an arbitrary UCI option after every handshake.
func WithEngineOption(name, value string) Option {
	return optionFunc(func(o *options) {
		if o.engineOptions == nil {
			o.engineOptions = make(map[string]string)
		}
		o.engineOptions[name] = value
	})
}

// WithStateListener registers fn to be called on lifecycle changes.
// Flips between ready and busy are not reported. fn runs on the
// supervisor goroutine and must not block.
func WithStateListener(fn func(State)) Option {
	return optionFunc(func(o *options) {
		o.listeners = append(o.listeners, fn)
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
