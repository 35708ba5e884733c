package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"promptflows/backend/internal/config"
	"promptflows/backend/internal/logging"
	"promptflows/backend/internal/repository"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if cfg.DB.Driver != "postgres" {
				return fmt.Errorf("migrate requires db.driver postgres, got %q", cfg.DB.Driver)
			}
			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

			pool, err := pgxpool.New(ctx, cfg.ConnString())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema applied", "database", cfg.DB.Name)
			return nil
		},
	}
}

func newRecountCommand(opts *rootOptions) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "recount",
		Short: "Recompute star, fork and comment counters from source rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if projectID != "" {
				counters, err := rt.service.Recount(ctx, projectID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s stars=%d forks=%d comments=%d\n",
					projectID, counters.StarCount, counters.ForkCount, counters.CommentCount)
				return nil
			}

			n, err := rt.service.RecountAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recounted %d projects\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "recount a single project")
	return cmd
}
