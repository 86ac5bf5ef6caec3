package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start the engine and show its identity",
	Long: `Launch the configured engine, complete the UCI handshake and report:
- Engine name, author and version
- Supervisor state and restart count`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, log, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer client.Close()

	if err := client.CheckEngine(ctx); err != nil {
		return fmt.Errorf("engine not responding: %w", err)
	}

	st := client.EngineStatus()
	fmt.Printf("Engine:   %s\n", st.State.Identity.Name)
	fmt.Printf("Author:   %s\n", st.State.Identity.Author)
	fmt.Printf("Type:     %s\n", st.Type)
	fmt.Printf("Version:  %s\n", st.Version)
	fmt.Printf("State:    %s\n", st.State.Status)
	fmt.Printf("Restarts: %d\n", st.State.RestartCount)
	return nil
}
