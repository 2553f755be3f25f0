package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

var catchUpAsOf string

var catchUpCmd = &cobra.Command{
	Use:   "catch-up",
	Short: "Run accrual catch-up for every employee once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runCatchUp(ctx)
	},
}

func init() {
	catchUpCmd.Flags().StringVar(&catchUpAsOf, "as-of", "", "catch up as of this date (YYYY-MM-DD), default today")
}

func runCatchUp(ctx context.Context) error {
	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	opts := []leave.Option{leave.WithLogger(d.log)}
	if catchUpAsOf != "" {
		asOf, err := ledger.ParseDate(catchUpAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		opts = append(opts, leave.WithClock(ledger.NewFixedClock(asOf.Time())))
	}
	engine := leave.NewEngine(d.store, opts...)

	result := api.NewAccrualScheduler(engine, d.store, d.log).RunOnce(ctx)
	for ref, ferr := range result.Failed {
		d.log.Error("catch-up failed", zap.String("employee_ref", string(ref)), zap.Error(ferr))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("catch-up failed for %d of %d employees", len(result.Failed), result.Processed)
	}
	return nil
}
