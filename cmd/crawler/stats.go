package main

import (
	"context"
	"fmt"

	"github.com/blackmichael/twitter-crawler/internal/stats"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print queue depths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			s, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := stats.NewReporter(s, logger).Report(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cursor search jobs:  %d\n", st.CursorSearchJobs)
			fmt.Fprintf(out, "thread jobs:         %d\n", st.ThreadJobs)
			fmt.Fprintf(out, "stub accounts:       %d\n", st.StubAccounts)
			fmt.Fprintf(out, "pending suggestions: %d\n", st.PendingSuggestions)
			fmt.Fprintf(out, "tracked accounts:    %d\n", st.TrackedAccounts)
			fmt.Fprintf(out, "posts last 24h:      %d\n", st.PostsLast24h)
			return nil
		},
	}
}
