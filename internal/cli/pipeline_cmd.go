package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ljramones/trope-miner/internal/pipeline"
)

var pipelinePolicyFlag string

var pipelineCmd = &cobra.Command{
	Use:   "pipeline <file-or-dir>...",
	Short: "Run ingest, seed, judge, and verify end to end for each input",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := parsePolicy(pipelinePolicyFlag)
		if err != nil {
			return err
		}

		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files found to process.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := pipeline.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing pipeline: %w", err)
		}
		defer p.Close()

		ctx := cmd.Context()
		for _, path := range files {
			raw, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to read %s: %v\n", path, err)
				continue
			}
			res, err := p.Run(ctx, path, "", path, raw, policy)
			if err != nil {
				return fmt.Errorf("processing %s: %w", path, err)
			}
			fmt.Printf("%s -> work %s (%d chapters, %d scenes, %d chunks)\n",
				path, res.WorkID, res.Chapters, res.Scenes, res.Chunks)
		}
		return nil
	},
}

func init() {
	pipelineCmd.Flags().StringVar(&pipelinePolicyFlag, "policy", "flag-only",
		"disposition for flagged findings: flag-only, downweight, or delete")
}
