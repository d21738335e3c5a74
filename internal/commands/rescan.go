package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tally-dev/tally/internal/config"
	"github.com/tally-dev/tally/internal/ingest"
	"github.com/tally-dev/tally/internal/logger"
	"github.com/tally-dev/tally/internal/store"
)

func newRescanCommand() *cobra.Command {
	var accounts []string

	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Re-run internal transfer detection over stored transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runRescan(cfgPath, accounts)
		},
	}

	cmd.Flags().StringSliceVar(&accounts, "account", nil, "limit the rescan to these accounts (repeatable)")

	return cmd
}

func runRescan(cfgPath string, accounts []string) error {
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
	flagged, err := svc.Rescan(context.Background(), accounts)
	if err != nil {
		return err
	}

	fmt.Printf("%d transactions newly flagged as internal transfers\n", flagged)
	return nil
}
