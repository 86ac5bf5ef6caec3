package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/coach/internal/live"
)

var followCmd = &cobra.Command{
	Use:   "follow [SERVER]",
	Short: "Stream a live analysis session from a server",
	Long: `Open (or join) a live analysis session on a running coach server and
print its events. The stream reconnects with exponential backoff when the
connection drops.

Examples:
  # New session, analyzing a position once connected
  coach follow http://localhost:8080 --fen "8/8/8/8/8/8/k7/K6Q w - - 0 1"

  # Join an existing session
  coach follow http://localhost:8080 --session 7d4e...`,
	Args: cobra.ExactArgs(1),
	RunE: runFollow,
}

var (
	followSession string
	followFEN     string
	followDepth   int
)

func init() {
	followCmd.Flags().StringVar(&followSession, "session", "", "existing session to join")
	followCmd.Flags().StringVar(&followFEN, "fen", "", "position to analyze once connected")
	followCmd.Flags().IntVar(&followDepth, "depth", 0, "search depth for --fen")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	base := strings.TrimRight(args[0], "/")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	client := &http.Client{Timeout: 30 * time.Second}
	id := followSession
	if id == "" {
		var created struct {
			SessionID string `json:"sessionId"`
		}
		if err := postJSON(ctx, client, base+"/analysis/live/session", nil, &created); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		id = created.SessionID
		log.Info("session created", zap.String("session", id))
	}

	f := live.NewFollower(log.Named("follow"))
	f.Backoff = cfg.Live.Backoff

	requested := false
	return f.Follow(ctx, base+"/analysis/live/stream/"+id, func(ev live.Received) error {
		printEvent(ev)
		if ev.Type == live.EventConnectionEstablished && followFEN != "" && !requested {
			requested = true
			req := map[string]any{"sessionId": id, "fen": followFEN}
			if followDepth > 0 {
				req["depth"] = followDepth
			}
			return postJSON(ctx, client, base+"/analysis/live/analyze", req, nil)
		}
		return nil
	})
}

func printEvent(ev live.Received) {
	ts := ev.Timestamp.Local().Format(time.TimeOnly)
	switch ev.Type {
	case live.EventAnalysisComplete:
		var data live.CompleteData
		if err := ev.Decode(&data); err == nil && data.Result != nil {
			fmt.Printf("%s %s %s\n", ts, ev.Type, data.Result.FEN)
			for _, l := range data.Result.Lines {
				fmt.Printf("    %d. %s (depth %d) %s\n",
					l.MultiPVIndex, l.Score(), l.Depth, strings.Join(l.PrincipalVariation, " "))
			}
			return
		}
	case live.EventAnalysisError:
		var data live.ErrorData
		if err := ev.Decode(&data); err == nil {
			fmt.Printf("%s %s %s: %s\n", ts, ev.Type, data.FEN, data.Message)
			return
		}
	case live.EventHeartbeat:
		if !verbose {
			return
		}
	}
	fmt.Printf("%s %s %s\n", ts, ev.Type, ev.Data)
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s %s", url, resp.Status, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
