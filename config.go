package coach

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/config"
	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/live"
	"github.com/discochess/coach/internal/review"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/store/blobstore"
	"github.com/discochess/coach/internal/store/cachedstore"
	"github.com/discochess/coach/internal/store/diskstore"
	"github.com/discochess/coach/internal/store/gcsstore"
	"github.com/discochess/coach/internal/store/memstore"
	"github.com/discochess/coach/internal/store/s3store"
)

// ConfigOptions translates the engine, analysis and live sections of cfg
// into client options.
func ConfigOptions(cfg *config.Config) []Option {
	e := cfg.Engine
	engineOpts := []engine.Option{
		engine.WithStartupTimeout(e.StartupTimeout),
		engine.WithHeartbeat(e.HeartbeatInterval, e.HeartbeatTimeout),
		engine.WithSearchGrace(e.SearchGrace),
		engine.WithKillGrace(e.KillGrace),
		engine.WithRestartPolicy(e.MaxRestarts, e.RestartWindow),
		engine.WithDefaultTimeLimit(e.DefaultTimeLimit),
		engine.WithHash(e.HashMB),
		engine.WithThreads(e.Threads),
	}
	for name, value := range e.Options {
		engineOpts = append(engineOpts, engine.WithEngineOption(name, value))
	}

	l := cfg.Live
	return []Option{
		WithEnginePath(e.Path, e.Args...),
		WithEngineOptions(engineOpts...),
		WithReviewOptions(
			review.WithDefaults(cfg.Analysis.Options),
			review.WithThresholds(cfg.Analysis.Thresholds),
		),
		WithLiveOptions(
			live.WithDefaultSettings(l.Settings),
			live.WithIdleTimeout(l.IdleTimeout),
			live.WithHeartbeatInterval(l.HeartbeatInterval),
			live.WithBufferSize(l.EventBuffer),
		),
	}
}

// OpenStore creates the store described by cfg. Remote and disk stores
// keep JSON documents compressed in a bucket; a positive cache size adds
// an LRU read cache in front.
func OpenStore(ctx context.Context, cfg config.Store, collector stats.Collector, logger *zap.Logger) (store.Store, error) {
	if collector == nil {
		collector = stats.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var bucket blobstore.Bucket
	switch cfg.Kind {
	case config.StoreMemory, "":
		return memstore.New(), nil
	case config.StoreDisk:
		b, err := diskstore.New(cfg.Dir)
		if err != nil {
			return nil, err
		}
		bucket = b
	case config.StoreS3:
		b, err := s3store.New(ctx, cfg.Bucket,
			s3store.WithPrefix(cfg.Prefix),
			s3store.WithRegion(cfg.Region),
			s3store.WithEndpoint(cfg.Endpoint),
		)
		if err != nil {
			return nil, err
		}
		bucket = b
	case config.StoreGCS:
		b, err := gcsstore.New(ctx, cfg.Bucket, gcsstore.WithPrefix(cfg.Prefix))
		if err != nil {
			return nil, err
		}
		bucket = b
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}

	blob, err := blobstore.New(bucket,
		blobstore.WithCompression(blobstore.Compression(cfg.Compression)),
		blobstore.WithLogger(logger.Named("store")),
	)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	var st store.Store = blob
	if cfg.CacheSize > 0 {
		cached, err := cachedstore.New(st, cfg.CacheSize, collector)
		if err != nil {
			st.Close()
			return nil, err
		}
		st = cached
	}
	return st, nil
}
