package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <username>...",
		Short: "Queue accounts for tracking",
		Long: `Suggest queues one or more usernames. A worker resolves each one to an
account, marks it tracked and schedules its history crawl. A leading @ is
ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSuggest,
	}
}

func runSuggest(cmd *cobra.Command, args []string) error {
	usernames, err := normalizeUsernames(args)
	if err != nil {
		return err
	}

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

	for _, u := range usernames {
		if err := s.AddSuggestion(ctx, u); err != nil {
			return err
		}
		logger.Info("suggestion queued", "username", u)
	}
	return nil
}

func normalizeUsernames(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		u := strings.TrimPrefix(strings.TrimSpace(a), "@")
		if u == "" {
			return nil, errors.New("username must not be empty")
		}
		out = append(out, u)
	}
	return out, nil
}
