// Command server runs the Lunchbox API.
//
//	lunchbox                       serve on PORT (default 8080)
//	lunchbox --config prod.yaml    serve with a config file
//	lunchbox migrate               apply schema migrations and exit
//
// main stays small: parse flags, load config, build the logger, hand off to
// internal/server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/lunchbox/internal/config"
	"github.com/sakif/lunchbox/internal/repository/sqlstore"
	"github.com/sakif/lunchbox/internal/server"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lunchbox",
		Short:         "Share restaurant lists with friends",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(configPath)
			if err != nil {
				return err
			}

			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}
			// Start blocks until SIGINT/SIGTERM
			if err := srv.Start(); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: ./lunchbox.yaml if present)")

	root.AddCommand(newMigrateCmd(&configPath))
	return root
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.EnsureDataDir(cfg); err != nil {
				return err
			}
			// Open applies migrations
			store, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger)
			if err != nil {
				logger.Error("migration failed", slog.String("error", err.Error()))
				return err
			}
			defer store.Close()

			version, err := store.Version(ctx)
			if err != nil {
				return err
			}
			logger.Info("schema up to date", slog.String("driver", cfg.Store.Driver), slog.Int("version", version))
			return nil
		},
	}
}

func load(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	return cfg, cfg.Logger(), nil
}
