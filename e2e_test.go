//go:build e2e

package coach_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/config"
	"github.com/discochess/coach/internal/live"
	"github.com/discochess/coach/internal/review"
)

const operaGame = `[Event "Paris"]
[White "Morphy, Paul"]
[Black "Duke Karl / Count Isouard"]
[Result "1-0"]

1. e4 e5 2. Nf3 d6 3. d4 Bg4 4. dxe5 Bxf3 5. Qxf3 dxe5 6. Bc4 Nf6 7. Qb3 Qe7
8. Nc3 c6 9. Bg5 b5 10. Nxb5 cxb5 11. Bxb5+ Nbd7 12. O-O-O Rd8
13. Rxd7 Rxd7 14. Rd1 Qe6 15. Bxd7+ Nxd7 16. Qb8+ Nxb8 17. Rd8# 1-0`

func TestE2E_RealEngine(t *testing.T) {
	enginePath := os.Getenv("COACH_ENGINE")
	if enginePath == "" {
		t.Skip("Skipping: COACH_ENGINE not set")
	}

	cfg := config.Default()
	cfg.Engine.Path = enginePath
	cfg.Store.Kind = config.StoreDisk
	cfg.Store.Dir = t.TempDir()
	ctx := context.Background()

	open := func() *coach.Client {
		st, err := coach.OpenStore(ctx, cfg.Store, nil, nil)
		if err != nil {
			t.Fatalf("Error opening store: %v", err)
		}
		client, err := coach.New(append(coach.ConfigOptions(cfg), coach.WithStore(st))...)
		if err != nil {
			t.Fatalf("Error creating client: %v", err)
		}
		if err := client.Start(ctx); err != nil {
			t.Fatalf("Error starting engine: %v", err)
		}
		return client
	}

	// Step 1: review a game.
	client := open()
	st := client.EngineStatus()
	t.Logf("Engine: %s %s", st.Type, st.Version)

	game, err := client.ImportGame(ctx, operaGame, "e2e")
	if err != nil {
		t.Fatalf("Error importing: %v", err)
	}
	start := time.Now()
	report, err := client.AnalyzeGame(ctx, game.ID, review.Options{Depth: 10, TimeLimit: 2 * time.Second})
	if err != nil {
		t.Fatalf("Error reviewing: %v", err)
	}
	t.Logf("Reviewed %d plies in %v; white %.1f, black %.1f", report.AnalyzedPositions,
		time.Since(start), report.Accuracy.White.Accuracy, report.Accuracy.Black.Accuracy)
	if report.TotalPositions != 33 || report.Incomplete {
		t.Errorf("report: %d plies, incomplete %v", report.TotalPositions, report.Incomplete)
	}

	// Step 2: a live session on the same engine.
	sessions := client.Sessions()
	info, err := sessions.Create()
	if err != nil {
		t.Fatal(err)
	}
	sub, err := sessions.Subscribe(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Analyze(info.ID, "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1", live.Overrides{}); err != nil {
		t.Fatal(err)
	}
	liveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for {
		ev, err := sub.Next(liveCtx)
		if err != nil {
			t.Fatalf("Error waiting for live analysis: %v", err)
		}
		if ev.Type == live.EventAnalysisError {
			t.Fatalf("live analysis failed: %+v", ev.Data)
		}
		if ev.Type != live.EventAnalysisComplete {
			continue
		}
		res := ev.Data.(live.CompleteData).Result
		if best := res.Best(); best == nil || best.Mate == nil || *best.Mate != 1 {
			t.Errorf("expected mate in one, got %+v", best)
		}
		break
	}

	if err := client.RestartEngine(ctx); err != nil {
		t.Errorf("Error restarting engine: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Error closing: %v", err)
	}

	// Step 3: the review survives a restart.
	client = open()
	defer client.Close()
	stored, err := client.Analysis(ctx, game.ID)
	if err != nil {
		t.Fatalf("Error reading stored analysis: %v", err)
	}
	if len(stored.Moves) != len(report.Records) {
		t.Errorf("stored %d moves, reviewed %d", len(stored.Moves), len(report.Records))
	}
}
