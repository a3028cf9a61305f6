package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/spf13/cobra"
)

type opsFlags struct {
	serverConfig string
	dsn          string
	grace        time.Duration
	batchSize    int
}

func (f *opsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.serverConfig, "server-config", "", "server config file (JSON or YAML)")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "database DSN, overrides the config file")
}

func (f *opsFlags) load() (*config.Config, error) {
	var args []string
	if f.serverConfig != "" {
		args = []string{"-c", f.serverConfig}
	}
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	if f.dsn != "" {
		cfg.DatabaseDSN = f.dsn
	}
	if f.grace > 0 {
		cfg.UnverifiedGracePeriod = f.grace
	}
	if f.batchSize > 0 {
		cfg.SweepBatchSize = f.batchSize
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	db, err := server.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, rm, nil
}

func sweepCmd() *cobra.Command {
	var f opsFlags
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one cleanup sweep of stale unverified accounts and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, rm, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			log := logging.NewJSON(os.Stderr, cfg.LogLevel)
			report, err := services.NewSweeper(db, rm, cfg.UnverifiedGracePeriod, cfg.SweepBatchSize, nil, log).Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "started:        %s\n", report.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "cutoff:         %s\n", report.Cutoff.Format(time.RFC3339))
			fmt.Fprintf(out, "deleted:        %d\n", report.Deleted)
			fmt.Fprintf(out, "skipped:        %d\n", report.Skipped)
			fmt.Fprintf(out, "expired tokens: %d\n", report.ExpiredTokens)
			fmt.Fprintf(out, "expired codes:  %d\n", report.ExpiredCodes)
			fmt.Fprintf(out, "duration:       %s\n", report.Duration)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().DurationVar(&f.grace, "grace", 0, "unverified grace period, overrides the config file")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "users per page, overrides the config file")
	return cmd
}

func migrateCmd() *cobra.Command {
	var f opsFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, rm, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := rm.RunMigrations(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}
