package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ljramones/trope-miner/internal/pipeline"
	"github.com/ljramones/trope-miner/internal/verifier"
)

var verifyPolicyFlag string

var verifyCmd = &cobra.Command{
	Use:   "verify <work-id>",
	Short: "Re-score and flag a work's findings, applying a disposition policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := parsePolicy(verifyPolicyFlag)
		if err != nil {
			return err
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

		n, err := p.VerifyWork(cmd.Context(), args[0], policy)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", args[0], err)
		}
		fmt.Printf("work %s: %d findings re-scored under policy %q\n", args[0], n, policy)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPolicyFlag, "policy", string(verifier.PolicyFlagOnly),
		"disposition for flagged findings: flag-only, downweight, or delete")
}

func parsePolicy(s string) (verifier.Policy, error) {
	switch verifier.Policy(s) {
	case verifier.PolicyFlagOnly, verifier.PolicyDownweight, verifier.PolicyDelete:
		return verifier.Policy(s), nil
	default:
		return "", fmt.Errorf("unknown policy %q: want flag-only, downweight, or delete", s)
	}
}
