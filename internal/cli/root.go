// Package cli implements the trope-miner command line: ingest, seed,
// judge, verify, and pipeline subcommands over internal/pipeline, built
// directly on cobra and viper.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ljramones/trope-miner/internal/minerconfig"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trope-miner",
	Short: "Mine literary tropes from long-form text",
	Long: `trope-miner ingests a manuscript, segments it into chapters, scenes,
and overlapping chunks, seeds trope candidates by gazetteer matching and
semantic search, judges scenes with an LLM reasoner, and verifies the
resulting findings' evidence spans.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env vars take precedence when unset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.PersistentFlags().String("db", "", "path to the sqlite database (overrides TROPE_MINER_DB)")
	rootCmd.PersistentFlags().String("chromem-path", "", "path to the chromem-go vector store directory")
	rootCmd.PersistentFlags().String("ollama-url", "", "Ollama base URL")
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("chromem-path", rootCmd.PersistentFlags().Lookup("chromem-path"))
	_ = viper.BindPFlag("ollama-url", rootCmd.PersistentFlags().Lookup("ollama-url"))

	rootCmd.AddCommand(ingestCmd, seedCmd, judgeCmd, verifyCmd, pipelineCmd)
}

// Execute runs the root command.
func Execute() error {
	cobra.OnInitialize(initViper)
	return rootCmd.Execute()
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to read config file %s: %v\n", cfgFile, err)
		}
	}
	viper.AutomaticEnv()
}

// loadConfig builds a minerconfig.Config from the environment, then
// applies any flag/config-file overrides bound through viper above.
func loadConfig() (*minerconfig.Config, error) {
	cfg, err := minerconfig.Load()
	if err != nil {
		return nil, err
	}
	if db := viper.GetString("db"); db != "" {
		cfg.DBPath = db
	}
	if path := viper.GetString("chromem-path"); path != "" {
		cfg.ChromemPath = path
	}
	if url := viper.GetString("ollama-url"); url != "" {
		cfg.OllamaBaseURL = url
	}
	return cfg, nil
}
