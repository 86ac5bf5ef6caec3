package live

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/stats"
)

// Option configures a Manager.
type Option interface {
	apply(*options)
}

type options struct {
	defaults          Settings
	idleTimeout       time.Duration
	heartbeatInterval time.Duration
	bufferSize        int
	stats             stats.Collector
	logger            *zap.Logger
}

func defaultOptions() options {
	return options{
		defaults:          DefaultSettings(),
		idleTimeout:       10 * time.Minute,
		heartbeatInterval: 15 * time.Second,
		bufferSize:        64,
		stats:             stats.NewNoop(),
		logger:            zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithDefaultSettings sets the settings new sessions start with.
func WithDefaultSettings(s Settings) Option {
	return optionFunc(func(o *options) {
		o.defaults = s.withDefaults(DefaultSettings())
	})
}

// WithIdleTimeout sets how long a session without a subscriber and
// without activity survives before it is evicted.
func WithIdleTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	})
}

// WithHeartbeatInterval sets the interval of heartbeat events. It also
// paces idle eviction.
func WithHeartbeatInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.heartbeatInterval = d
		}
	})
}

// WithBufferSize sets the number of events kept per session while the
// subscriber lags or is away. The oldest events are dropped first.
func WithBufferSize(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
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
