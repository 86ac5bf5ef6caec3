package micro

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/accuracy"
	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/store/blobstore"
	"github.com/discochess/coach/internal/store/cachedstore"
	"github.com/discochess/coach/internal/store/diskstore"
)

func benchAnalysis(moves int) *store.Analysis {
	a := &store.Analysis{GameID: "bench", Engine: "Stockfish 16", AnalyzedAt: time.Now()}
	for i := 1; i <= moves; i++ {
		cp, loss, wpl := 20, i%40, float64(i%7)
		a.Moves = append(a.Moves, store.MoveAnalysis{
			MoveNumber:         i,
			PlayerMove:         "Nf3",
			PlayerMoveUCI:      "g1f3",
			EvaluationCp:       &cp,
			BestMove:           "d4",
			BestLine:           []string{"d2d4", "d7d5", "c2c4", "e7e6"},
			MistakeSeverity:    "good",
			CentipawnLoss:      &loss,
			WinProbabilityLoss: &wpl,
			AnalysisDepth:      20,
		})
	}
	return a
}

func openDisk(b *testing.B, c blobstore.Compression) store.Store {
	b.Helper()
	bucket, err := diskstore.New(b.TempDir())
	if err != nil {
		b.Fatalf("creating bucket: %v", err)
	}
	st, err := blobstore.New(bucket, blobstore.WithCompression(c))
	if err != nil {
		b.Fatalf("creating store: %v", err)
	}
	b.Cleanup(func() { st.Close() })
	return st
}

// BenchmarkAnalysis_ColdRead measures reading a stored review from disk.
func BenchmarkAnalysis_ColdRead(b *testing.B) {
	for _, c := range []blobstore.Compression{blobstore.CompressionNone, blobstore.CompressionGzip, blobstore.CompressionZstd} {
		b.Run(string(c), func(b *testing.B) {
			st := openDisk(b, c)
			ctx := context.Background()
			if err := st.ReplaceAnalysis(ctx, benchAnalysis(80)); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := st.Analysis(ctx, "bench"); err != nil {
					b.Fatalf("read error: %v", err)
				}
			}
		})
	}
}

// BenchmarkAnalysis_WarmCache measures reads served by the LRU cache.
func BenchmarkAnalysis_WarmCache(b *testing.B) {
	st, err := cachedstore.New(openDisk(b, blobstore.CompressionZstd), 100, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if err := st.ReplaceAnalysis(ctx, benchAnalysis(80)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := st.Analysis(ctx, "bench"); err != nil {
			b.Fatalf("read error: %v", err)
		}
	}
	b.StopTimer()

	s := st.Stats()
	b.ReportMetric(s.HitRate(), "hit%")
}

// BenchmarkSummarize measures accuracy aggregation for games of
// increasing length.
func BenchmarkSummarize(b *testing.B) {
	for _, n := range []int{40, 80, 160} {
		moves := make([]accuracy.Move, n)
		for i := range moves {
			moves[i] = accuracy.Move{
				MoveNumber:         i + 1,
				CentipawnLoss:      float64(i % 90),
				WinProbabilityLoss: float64(i % 12),
			}
		}
		b.Run(fmt.Sprintf("plies=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				accuracy.Summarize(moves, accuracy.DefaultThresholds())
			}
		})
	}
}

// BenchmarkEvaluate measures a full round trip through a real engine.
// Requires COACH_ENGINE pointing to a UCI engine binary.
func BenchmarkEvaluate(b *testing.B) {
	enginePath := os.Getenv("COACH_ENGINE")
	if enginePath == "" {
		b.Skip("COACH_ENGINE not set; skipping benchmark")
	}

	client, err := coach.New(coach.WithEnginePath(enginePath))
	if err != nil {
		b.Fatalf("creating client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		b.Fatalf("starting engine: %v", err)
	}

	positions := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
		"r1bqk2r/pppp1ppp/2n2n2/2b1p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 5",
		"8/8/8/4k3/8/8/4P3/4K3 w - - 0 1",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := client.Evaluate(ctx, positions[i%len(positions)], coach.EvalOptions{Depth: 10})
		if err != nil {
			b.Fatalf("evaluate error: %v", err)
		}
	}
}

// TestMicroBenchmarksCompile ensures this package builds under go test.
func TestMicroBenchmarksCompile(t *testing.T) {}
