package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep",
	Long: `Prune superseded context snapshots of finished workflows that are
older than the configured retention window. Runs a single sweep and
exits; every deletion is recorded in the audit trail.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, cleanup, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sweeper := newRetentionSweeper(m, cfg)
	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Printf("Pruned %d superseded snapshot(s).\n", deleted)
	return nil
}
