package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/logger"
	"github.com/warp/leave-ledger/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Run Postgres schema migrations",
	Long:      `Apply (up), roll back one step (down) or report (version) the embedded Postgres migrations. SQLite creates its schema on open.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateVersion},
	RunE:      runMigration,
}

func runMigration(_ *cobra.Command, args []string) error {
	action := postgres.MigrateUp
	if len(args) == 1 {
		action = args[0]
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.Driver != config.DriverPostgres {
		log.Info("nothing to migrate", zap.String("driver", cfg.Database.Driver))
		return nil
	}

	version, err := postgres.Migrate(action, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}
	log.Info("migration finished", zap.String("action", action), zap.Uint("version", version))
	return nil
}
