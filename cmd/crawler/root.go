package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/blackmichael/twitter-crawler/internal/config"
	"github.com/blackmichael/twitter-crawler/internal/domain"
	crawlerlog "github.com/blackmichael/twitter-crawler/internal/log"
	"github.com/blackmichael/twitter-crawler/internal/postgres"
	"github.com/blackmichael/twitter-crawler/internal/sqlite"
	"github.com/spf13/cobra"
)

// store is a content store the commands can migrate and close.
type store interface {
	domain.Store
	Migrate() (bool, error)
	Close() error
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl tracked accounts and their reply threads",
		Long: `crawler walks the post history of tracked accounts backward, reconstructs
the reply chains their posts belong to, and hydrates every account it meets.

Configuration is read from the environment, a .env file and an optional
crawler.yaml in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-format", "", "Log format: json or text (overrides LOG_FORMAT)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSuggestCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// setup loads configuration and builds the logger shared by all commands.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if f, _ := cmd.Flags().GetString("log-format"); f != "" {
		cfg.LogFormat = f
	}
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		cfg.LogLevel = l
	}

	logger, err := crawlerlog.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore connects to the configured store and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	var (
		s   store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err = sqlite.Open(ctx, cfg.DatabaseURL)
	default:
		s, err = postgres.NewRepository(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	logger.Info("connected to database", "driver", cfg.StoreDriver)

	changed, err := s.Migrate()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if changed {
		logger.Info("database migrated")
	}
	return s, nil
}
