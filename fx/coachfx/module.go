// Package coachfx provides an fx module for a config-driven coach client
// and its HTTP server.
package coachfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/config"
	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/stats/prometheus"
	"github.com/discochess/coach/internal/store"
)

// Module provides a *coach.Client and a running HTTP server.
// Requires a *config.Config and a *zap.Logger to be provided. An
// engine.Launcher may be provided to replace the configured binary.
var Module = fx.Module("coach",
	fx.Provide(
		newStatsCollector,
		newStore,
		newClient,
		newServer,
	),
	fx.Invoke(func(*Server) {}),
)

// Metrics bundles the Prometheus collector with its stats.Collector view.
type Metrics struct {
	fx.Out

	Prometheus *prometheus.Collector
	Collector  stats.Collector
}

func newStatsCollector() Metrics {
	c := prometheus.New(nil)
	return Metrics{Prometheus: c, Collector: c}
}

// StoreParams holds dependencies for opening the store.
type StoreParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Collector stats.Collector
}

func newStore(p StoreParams) (store.Store, error) {
	return coach.OpenStore(context.Background(), p.Config.Store, p.Collector, p.Logger)
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Store     store.Store
	Launcher  engine.Launcher `optional:"true"`
	Lifecycle fx.Lifecycle
}

// Result holds the provided client.
type Result struct {
	fx.Out

	Client *coach.Client
}

func newClient(p Params) (Result, error) {
	opts := coach.ConfigOptions(p.Config)
	if p.Launcher != nil {
		opts = append(opts, coach.WithLauncher(p.Launcher))
	}
	opts = append(opts,
		coach.WithStore(p.Store),
		coach.WithStats(p.Collector),
		coach.WithLogger(p.Logger.Named("coach")),
	)

	client, err := coach.New(opts...)
	if err != nil {
		p.Store.Close()
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// A failed engine is reported through the status endpoint
			// and can be reset there.
			if err := client.Start(ctx); err != nil {
				p.Logger.Warn("engine failed to start", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return Result{Client: client}, nil
}
