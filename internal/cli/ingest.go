package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ljramones/trope-miner/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-dir>...",
	Short: "Decode, segment, chunk, and index one or more manuscripts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files found to ingest.")
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
			title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			res, err := p.Ingest(ctx, title, "", path, raw)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("%s -> work %s (%d chapters, %d scenes, %d chunks)\n",
				path, res.WorkID, res.Chapters, res.Scenes, res.Chunks)
		}
		return nil
	},
}

// expandInputs resolves glob patterns and expands directories to their
// plain-text and PDF files.
func expandInputs(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %s: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", match, err)
			}
			if !info.IsDir() {
				files = append(files, match)
				continue
			}
			err = filepath.WalkDir(match, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isIngestible(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk directory %s: %w", match, err)
			}
		}
	}
	return files, nil
}

func isIngestible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".pdf"
}
