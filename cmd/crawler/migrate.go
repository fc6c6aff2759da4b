package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			logger.Info("database schema up to date")
			return nil
		},
	}
}
