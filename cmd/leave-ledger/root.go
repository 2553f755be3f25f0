package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/ledger"
	memstore "github.com/warp/leave-ledger/ledger/store"
	"github.com/warp/leave-ledger/logger"
	"github.com/warp/leave-ledger/store/postgres"
	"github.com/warp/leave-ledger/store/sqlite"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "leave-ledger",
	Short:         "Leave balance ledger",
	Long:          `Append-only ledger of leave accruals, leave taken and corrections per employee.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".", "directory containing config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(catchUpCmd)
}

// deps is what every command needs after startup.
type deps struct {
	cfg   *config.Config
	log   *zap.Logger
	store backend
	close func()
}

// backend is a ledger store that also keeps the employee directory.
type backend interface {
	ledger.Store
	ledger.Directory
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &deps{
		cfg:   cfg,
		log:   log,
		store: store,
		close: func() {
			closeStore()
			_ = log.Sync()
		},
	}, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using postgres store")
		return postgres.New(pool), pool.Close, nil

	case config.DriverMemory:
		log.Warn("using in-memory store, data will not survive a restart")
		return memstore.NewMemory(), func() {}, nil

	default:
		store, err := sqlite.NewWithTimeout(cfg.Path, cfg.BusyTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		log.Info("using sqlite store", zap.String("path", cfg.Path))
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error("database close error", zap.Error(err))
			}
		}, nil
	}
}
