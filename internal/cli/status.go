package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/pkg/memory"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status",
	Long:  `Show the configured backends and the number of entities held in each memory tier.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, cleanup, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Config: %s\n", config.NewLoader(cfgFile).GetConfigPath())
	fmt.Printf("Semantic backend: %s\n", cfg.Store.SemanticBackend)
	if cfg.Embedding.Provider != "" {
		fmt.Printf("Embedding provider: %s (%s)\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	} else {
		fmt.Println("Embedding provider: none (semantic search degraded to text match)")
	}

	counts := m.TierCounts()
	fmt.Println("Tiers:")
	for _, tier := range []memory.Tier{memory.TierWorking, memory.TierEpisodic, memory.TierSemantic, memory.TierGraph} {
		fmt.Printf("  %-9s %d\n", tier, counts[tier])
	}
	return nil
}
