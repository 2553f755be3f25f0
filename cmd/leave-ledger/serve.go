package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/leave"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server",
	Long:  `Start the HTTP API and the background accrual scheduler.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServer(cmd.Context())
	},
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	engine := leave.NewEngine(d.store, leave.WithLogger(d.log))
	handler := api.NewHandler(engine, d.store, d.log)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: d.cfg.HTTP.AllowedOrigins})

	scheduler := api.NewAccrualScheduler(engine, d.store, d.log)
	scheduler.Enabled = d.cfg.Accrual.SchedulerEnabled
	scheduler.CheckInterval = d.cfg.Accrual.Interval
	scheduler.Start()
	defer scheduler.Stop()

	addr := fmt.Sprintf(":%d", d.cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  d.cfg.HTTP.ReadTimeout,
		WriteTimeout: d.cfg.HTTP.WriteTimeout,
		IdleTimeout:  d.cfg.HTTP.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErr := make(chan error, 1)
	go func() {
		d.log.Info("server starting", zap.String("address", addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigChan:
		d.log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	d.log.Info("server stopped")
	return nil
}
