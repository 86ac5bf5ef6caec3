package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/config"
	"github.com/discochess/coach/internal/stats/logger"
)

var (
	// Global flags.
	configPath string
	enginePath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "Engine-backed game review and live analysis",
	Long: `Coach drives a UCI chess engine to review games, evaluate positions
and stream live analysis to connected clients.

Examples:
  # Serve the HTTP API
  coach serve --config coach.yaml

  # Review every game in a PGN file
  coach analyze --pgn games.pgn --depth 18

  # Evaluate a single position
  coach eval "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"

  # Watch a live session on a running server
  coach follow http://localhost:8080 --fen "8/8/8/8/8/8/k7/K6Q w - - 0 1"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&enginePath, "engine", "", "engine binary (overrides engine.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if enginePath != "" {
		cfg.Engine.Path = enginePath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Log.ZapLevel()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openClient builds a client for one-shot commands, starting the engine
// when asked. Metrics go to the debug log.
func openClient(ctx context.Context, cfg *config.Config, log *zap.Logger, start bool) (*coach.Client, error) {
	collector := logger.New(log.Named("stats"))
	st, err := coach.OpenStore(ctx, cfg.Store, collector, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	opts := append(coach.ConfigOptions(cfg),
		coach.WithStore(st),
		coach.WithStats(collector),
		coach.WithLogger(log.Named("coach")),
	)
	client, err := coach.New(opts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating client: %w", err)
	}
	if !start {
		return client, nil
	}
	if err := client.Start(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("starting engine %q: %w", cfg.Engine.Path, err)
	}
	return client, nil
}

// setup loads configuration and opens a client.
func setup(ctx context.Context, start bool) (*coach.Client, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := openClient(ctx, cfg, log, start)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return client, log, nil
}
