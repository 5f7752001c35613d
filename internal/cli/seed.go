package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ljramones/trope-miner/internal/pipeline"
)

var seedCmd = &cobra.Command{
	Use:   "seed <work-id>",
	Short: "Seed trope candidates for an ingested work via gazetteer and semantic search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := pipeline.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing pipeline: %w", err)
		}
		defer p.Close()

		gazetteerCount, semanticCount, err := p.SeedCandidates(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("seeding %s: %w", args[0], err)
		}
		fmt.Printf("work %s: %d gazetteer candidates, %d semantic candidates\n", args[0], gazetteerCount, semanticCount)
		return nil
	},
}
