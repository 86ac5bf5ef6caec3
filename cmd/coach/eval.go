package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/coach"
)

var evalCmd = &cobra.Command{
	Use:   "eval [FEN]",
	Short: "Evaluate a chess position",
	Long: `Search a position given in FEN notation and print the engine's lines.

Examples:
  # Starting position, three lines
  coach eval --multipv 3 "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var (
	evalDepth   int
	evalMultiPV int
	evalTime    time.Duration
	outputJSON  bool
)

func init() {
	evalCmd.Flags().IntVar(&evalDepth, "depth", 0, "search depth (default from config)")
	evalCmd.Flags().IntVar(&evalMultiPV, "multipv", 1, "number of lines")
	evalCmd.Flags().DurationVar(&evalTime, "time", 0, "time limit (default from config)")
	evalCmd.Flags().BoolVar(&outputJSON, "json", false, "output result as JSON")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, log, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer client.Close()

	eval, err := client.Evaluate(ctx, args[0], coach.EvalOptions{
		Depth:     evalDepth,
		MultiPV:   evalMultiPV,
		TimeLimit: evalTime,
	})
	if err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(eval)
	}
	printEval(eval)
	return nil
}

func printEval(eval *coach.Evaluation) {
	fmt.Printf("FEN:   %s\n", eval.FEN)
	fmt.Printf("Score: %s\n", eval.Score())
	fmt.Printf("Best:  %s\n", eval.BestMove)
	fmt.Printf("Depth: %d\n", eval.Depth)
	for i, pv := range eval.Lines {
		fmt.Printf("PV %d:  %s (%s)\n", i+1, pv.Line(), pv.Score())
	}
	fmt.Printf("Time:  %s\n", eval.Elapsed.Round(time.Millisecond))
	if !eval.Complete {
		fmt.Println("(search stopped at the time limit)")
	}
}
