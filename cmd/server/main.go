package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dhoini/job-tracker/config"
	"github.com/Dhoini/job-tracker/internal/app"
	"github.com/Dhoini/job-tracker/internal/repository/postgres"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobtracker",
		Short:         "Job application tracker backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var opts app.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			// Контекст отменяется по SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, opts, log)
			if err != nil {
				log.Errorw("Failed to initialize application", "error", err)
				return err
			}
			defer application.Close()

			if err := application.Run(ctx); err != nil {
				log.Errorw("Server stopped with error", "error", err)
				return err
			}
			log.Infow("Server exited properly")
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.SkipMigrations, "skip-migrations", false, "do not apply database migrations on startup")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(*cobra.Command, []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate: STORAGE_DRIVER is %q, nothing to migrate", cfg.Storage.Driver)
			}
			return postgres.Migrate(cfg.Storage.DSN, log.Named("migrate"))
		},
	}
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.IsProduction())
	log.Infow("Configuration loaded", "env", cfg.Env, "storage", cfg.Storage.Driver, "port", cfg.Server.Port)
	return cfg, log, nil
}
