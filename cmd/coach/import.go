package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/notnil/chess"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCmd = &cobra.Command{
	Use:   "import [PGN...]",
	Short: "Import games into the configured store",
	Long: `Store every game of the given PGN files (optionally .zst compressed)
and print the assigned game IDs. Use a disk or bucket store in the config
so that a server can review the games later.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, log, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer client.Close()

	var imported, failed int
	for _, path := range args {
		r, err := openPGN(path)
		if err != nil {
			return err
		}
		scanner := chess.NewScanner(r)
		for scanner.Scan() {
			game := scanner.Next()
			g, err := client.ImportGame(ctx, game.String(), path)
			if err != nil {
				failed++
				log.Warn("import failed", zap.String("file", path), zap.Error(err))
				continue
			}
			imported++
			fmt.Printf("%s\t%s vs %s\n", g.ID, g.White, g.Black)
		}
		err = scanner.Err()
		r.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	log.Info("import finished", zap.Int("imported", imported), zap.Int("failed", failed))
	return nil
}
