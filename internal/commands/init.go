package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tally-dev/tally/internal/config"
)

func newInitCommand() *cobra.Command {
	var dataDir string
	var port int

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new tally project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			return runInit(absDir, dataDir, port)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "data directory (database + import folder)")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")

	return cmd
}

func runInit(dir, dataDir string, port int) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists in %s", config.FileName, dir)
	}

	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.Server.Port = port

	for _, d := range []string{cfg.ImportDir(), cfg.ProcessedDir()} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}

	fmt.Printf("Initialized tally project in %s\n", dir)
	fmt.Printf("Drop statement CSVs into %s and run 'tally import'\n", cfg.ImportDir())
	return nil
}
