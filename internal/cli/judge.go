package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ljramones/trope-miner/internal/pipeline"
)

var judgeCmd = &cobra.Command{
	Use:   "judge <work-id>",
	Short: "Judge every scene of a work and persist trope findings",
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

		n, err := p.JudgeWork(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("judging %s: %w", args[0], err)
		}
		fmt.Printf("work %s: %d findings persisted\n", args[0], n)
		return nil
	},
}
