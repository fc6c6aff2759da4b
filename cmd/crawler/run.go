package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackmichael/twitter-crawler/internal/domain"
	"github.com/blackmichael/twitter-crawler/internal/httpserver"
	"github.com/blackmichael/twitter-crawler/internal/stats"
	"github.com/blackmichael/twitter-crawler/internal/twitter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the crawler workers",
		Long: `Run starts CRAWLER_CONCURRENCY workers that share one store and one paced
provider client. SIGINT or SIGTERM lets each worker finish its current cycle
before exiting.`,
		Args: cobra.NoArgs,
		RunE: runCrawler,
	}
}

func runCrawler(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	client := twitter.NewClient(cfg.APIKey,
		twitter.WithBaseURL(cfg.BaseURL),
		twitter.WithTimeout(cfg.HTTPTimeout),
		twitter.WithAPIDelay(cfg.APIDelay),
	)

	crawler := domain.NewCrawler(s, client, domain.Options{
		Concurrency:    cfg.Concurrency,
		DailyPostLimit: cfg.DailyPostLimit,
		IdleDelay:      cfg.IdleDelay,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return crawler.Run(ctx)
	})
	if cfg.StatsSchedule != "" {
		reporter := stats.NewReporter(s, logger)
		g.Go(func() error {
			return reporter.Start(ctx, cfg.StatsSchedule)
		})
	}

	if cfg.StatusAddr != "" {
		srv := httpserver.NewServer(cfg.StatusAddr, s, logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	logger.Info("crawler stopped")
	return nil
}
