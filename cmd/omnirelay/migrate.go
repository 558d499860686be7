package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/memohai/omnirelay/internal/config"
	"github.com/memohai/omnirelay/internal/db"
	"github.com/memohai/omnirelay/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return db.MigrateUp(logger.L, cfg.Postgres)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (all when steps is omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 0
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("steps must be a positive integer: %q", args[0])
					}
					steps = n
				}
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return db.MigrateDown(logger.L, cfg.Postgres, steps)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				status, err := db.MigrationVersion(logger.L, cfg.Postgres)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", status.Version, status.Dirty)
				return err
			},
		},
	)
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPathFrom(cmd))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
