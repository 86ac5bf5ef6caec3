package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/notnil/chess"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/accuracy"
	"github.com/discochess/coach/internal/review"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Review the games in a PGN file",
	Long: `Import each game of a PGN file, review it with the engine and print
per-player accuracy and the mistakes found. Files ending in .zst are
decompressed on the fly.

Examples:
  # Review the first five games, skipping four opening plies
  coach analyze --pgn games.pgn --games 5 --skip 4

  # Persist reviews to disk for the server to pick up
  coach analyze --pgn games.pgn.zst --config disk.yaml`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

var (
	pgnFile     string
	maxGames    int
	reviewOpts  review.Options
	reviewLimit time.Duration
	skipPlies   int
	maxPlies    int
)

func init() {
	analyzeCmd.Flags().StringVarP(&pgnFile, "pgn", "p", "", "PGN file to analyze (supports .zst)")
	analyzeCmd.Flags().IntVarP(&maxGames, "games", "g", 0, "max games to analyze (0 for all)")
	analyzeCmd.Flags().IntVar(&reviewOpts.Depth, "depth", 0, "search depth (default from config)")
	analyzeCmd.Flags().IntVar(&skipPlies, "skip", 0, "opening plies to skip (default from config)")
	analyzeCmd.Flags().IntVar(&maxPlies, "max", 0, "max plies to review per game (default from config)")
	analyzeCmd.Flags().IntVar(&reviewOpts.MultiPV, "multipv", 0, "lines searched per position")
	analyzeCmd.Flags().DurationVar(&reviewLimit, "time", 0, "time limit per position")
	analyzeCmd.Flags().BoolVar(&outputJSON, "json", false, "output reports as JSON lines")
	analyzeCmd.MarkFlagRequired("pgn")
	rootCmd.AddCommand(analyzeCmd)
}

// openPGN opens path, decompressing .zst files.
func openPGN(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PGN: %w", err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	return struct {
		io.Reader
		io.Closer
	}{dec, closerFunc(func() error { dec.Close(); return f.Close() })}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openPGN(pgnFile)
	if err != nil {
		return err
	}
	defer r.Close()

	client, log, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer client.Close()

	reviewOpts.TimeLimit = reviewLimit
	if cmd.Flags().Changed("skip") {
		reviewOpts.SkipOpeningMoves = review.Int(skipPlies)
	}
	if cmd.Flags().Changed("max") {
		reviewOpts.MaxPositions = review.Int(maxPlies)
	}
	enc := json.NewEncoder(os.Stdout)

	var (
		analyzed, failed int
		white, black     float64
	)
	scanner := chess.NewScanner(r)
	for scanner.Scan() {
		if maxGames > 0 && analyzed+failed >= maxGames {
			break
		}
		game := scanner.Next()
		n := analyzed + failed + 1

		report, err := analyzeOne(cmd, client, game)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			log.Warn("game failed", zap.Int("game", n), zap.Error(err))
			continue
		}
		analyzed++
		white += report.Accuracy.White.Accuracy
		black += report.Accuracy.Black.Accuracy

		if outputJSON {
			if err := enc.Encode(report); err != nil {
				return err
			}
			continue
		}
		printReport(n, game, report)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading PGN: %w", err)
	}

	if !outputJSON {
		fmt.Printf("\n=== Summary ===\n")
		fmt.Printf("Games analyzed: %d\n", analyzed)
		if failed > 0 {
			fmt.Printf("Games failed:   %d\n", failed)
		}
		if analyzed > 0 {
			fmt.Printf("Avg accuracy:   white %.1f, black %.1f\n",
				white/float64(analyzed), black/float64(analyzed))
		}
	}
	return nil
}

func analyzeOne(cmd *cobra.Command, client *coach.Client, game *chess.Game) (*review.Report, error) {
	ctx := cmd.Context()
	g, err := client.ImportGame(ctx, game.String(), pgnFile)
	if err != nil {
		return nil, err
	}
	return client.AnalyzeGame(ctx, g.ID, reviewOpts)
}

func printReport(n int, game *chess.Game, report *review.Report) {
	fmt.Printf("\n=== Game %d: %s vs %s (%s) ===\n", n,
		tag(game, "White"), tag(game, "Black"), game.Outcome())
	fmt.Printf("  Reviewed %d/%d plies", report.AnalyzedPositions, report.TotalPositions)
	if report.Incomplete {
		fmt.Print(" (incomplete)")
	}
	fmt.Println()

	for _, rec := range report.Records {
		sev, err := accuracy.ParseSeverity(rec.MistakeSeverity)
		if err == nil && sev >= accuracy.Mistake {
			fmt.Printf("  Ply %3d: %-7s %-8s best %s\n", rec.MoveNumber, rec.PlayerMove, rec.MistakeSeverity, rec.BestMove)
		}
	}

	acc := report.Accuracy
	fmt.Printf("  Accuracy: white %.1f (ACPL %.0f), black %.1f (ACPL %.0f)\n",
		acc.White.Accuracy, acc.White.ACPL, acc.Black.Accuracy, acc.Black.ACPL)
}

func tag(game *chess.Game, key string) string {
	if tp := game.GetTagPair(key); tp != nil {
		return tp.Value
	}
	return "?"
}
