package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/ledger/store"
)

func schedulerFixture(t *testing.T) (*AccrualScheduler, *store.Memory, *observer.ObservedLogs) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	hire, err := ledger.ParseDate("2024-01-15")
	require.NoError(t, err)
	require.NoError(t, mem.SaveEmployee(ctx, ledger.Employee{
		Ref: "E1", HireDate: &hire, AccrualRate: decimal.RequireFromString("1.5"), Status: ledger.StatusActive,
	}))
	require.NoError(t, mem.SaveEmployee(ctx, ledger.Employee{
		Ref: "E2", AccrualRate: decimal.NewFromInt(2), Status: ledger.StatusActive,
	}))

	core, logs := observer.New(zap.InfoLevel)
	clock := ledger.NewFixedClock(time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC))
	engine := leave.NewEngine(mem, leave.WithClock(clock))
	return NewAccrualScheduler(engine, mem, zap.New(core)), mem, logs
}

func TestAccrualScheduler_RunOnce(t *testing.T) {
	// GIVEN: One employee with a hire date and one without
	s, mem, logs := schedulerFixture(t)

	// WHEN: Running a single pass
	result := s.RunOnce(context.Background())

	// THEN: Only the hired employee is caught up
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 3, result.Created)
	assert.Empty(t, result.Failed)

	balance, err := mem.Balance(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, 1, logs.FilterMessage("catch-up run completed").Len())

	// AND: A second pass is a quiet no-op
	result = s.RunOnce(context.Background())
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, logs.FilterMessage("catch-up run completed").Len())
}

func TestAccrualScheduler_StartStop(t *testing.T) {
	s, mem, _ := schedulerFixture(t)
	s.CheckInterval = time.Hour

	s.Start()
	s.Start()

	// The first run happens immediately on start.
	require.Eventually(t, func() bool {
		periods, err := mem.AccrualPeriods(context.Background(), "E1")
		return err == nil && len(periods) == 3
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestAccrualScheduler_Disabled(t *testing.T) {
	s, mem, logs := schedulerFixture(t)
	s.Enabled = false

	s.Start()
	s.Stop()

	periods, err := mem.AccrualPeriods(context.Background(), "E1")
	require.NoError(t, err)
	assert.Empty(t, periods)
	assert.Equal(t, 1, logs.FilterMessage("scheduler disabled, not starting").Len())
}
