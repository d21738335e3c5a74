package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tally-dev/tally/internal/config"
	"github.com/tally-dev/tally/internal/ingest"
	"github.com/tally-dev/tally/internal/logger"
	"github.com/tally-dev/tally/internal/store"
)

func newImportCommand() *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Ingest statement CSVs (from the import directory, or the given files)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runImport(cfgPath, args, keep)
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "do not move ingested files to the processed directory")

	return cmd
}

func runImport(cfgPath string, files []string, keep bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	st, err := store.Open(cfg.DatabasePath(), log)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := ingest.NewService(st.Transactions, st.Uploads, log)

	fromImportDir := len(files) == 0
	if fromImportDir {
		files, err = scanImportDir(cfg.ImportDir())
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Printf("No CSV files in %s\n", cfg.ImportDir())
			return nil
		}
	}

	ctx := context.Background()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		summary, err := svc.Ingest(ctx, data, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", filepath.Base(path), err)
		}

		fmt.Printf("%s: %d inserted, %d duplicates skipped, %d transfers flagged",
			filepath.Base(path), summary.Inserted, summary.DuplicatesSkipped, summary.TransfersFlagged)
		if n := len(summary.MalformedRows); n > 0 {
			fmt.Printf(", %d malformed rows", n)
		}
		fmt.Println()
		for _, m := range summary.MalformedRows {
			fmt.Printf("  row %d: malformed %s\n", m.Row, m.Field)
		}

		if fromImportDir && !keep {
			if err := markProcessed(path, cfg.ProcessedDir()); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanImportDir returns CSV files in the import directory.
func scanImportDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// markProcessed moves an ingested file to the processed directory.
func markProcessed(path, processedDir string) error {
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}
	dst := filepath.Join(processedDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", filepath.Base(path), err)
	}
	return nil
}
