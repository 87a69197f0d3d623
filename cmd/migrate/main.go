// Command migrate applies or reports the document store migrations.
package main

import (
	"fmt"
	"os"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the document store schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")

	open := func() (*config.Config, database.Service, error) {
		cfg := config.Load()
		if dir == "" {
			dir = cfg.Server.MigrationsDir
		}
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return cfg, db, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer log.Sync()
			return database.RunMigrations(db.DB(), dir, log)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			return database.GetMigrationStatus(db.DB(), dir, cmd.OutOrStdout())
		},
	})

	return root
}
