package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

func TestSwitchoverPeriod(t *testing.T) {
	assert.Equal(t, "2024-03", leave.SwitchoverPeriod(date("2024-03-01")).String())
	assert.Equal(t, "2024-04", leave.SwitchoverPeriod(date("2024-03-15")).String())
	assert.Equal(t, "2025-01", leave.SwitchoverPeriod(date("2024-12-31")).String())
}

func TestRecalculateForPromotion_Switchover(t *testing.T) {
	tests := []struct {
		name      string
		promoted  string
		wantRates map[string]string
		want      string
	}{
		{
			name:     "promoted on the first",
			promoted: "2024-03-01",
			wantRates: map[string]string{
				"2024-01": "1.5", "2024-02": "1.5", "2024-03": "2", "2024-04": "2",
			},
			want: "7",
		},
		{
			name:     "promoted mid-month",
			promoted: "2024-03-15",
			wantRates: map[string]string{
				"2024-01": "1.5", "2024-02": "1.5", "2024-03": "1.5", "2024-04": "2",
			},
			want: "6.5",
		},
	}

	for _, tt := range tests {
		for name, s := range stores(t) {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				// GIVEN: Four months accrued at 1.5
				ctx := context.Background()
				engine, _ := newEngine(s, "2024-05-10")
				emp := employee("E1", "2024-01-15", "1.5")
				requireBalance(t, engine, emp, "6")

				// WHEN: Promoting to 2.0
				err := engine.RecalculateForPromotion(ctx, emp, dec("1.5"), dec("2"), date(tt.promoted), engine.Today(), "hr")
				require.NoError(t, err)

				// THEN: Each month carries the rate that applied to it
				rows := rowsOfKind(t, s, "E1", ledger.KindAccrual)
				require.Len(t, rows, len(tt.wantRates))
				for _, row := range rows {
					want := tt.wantRates[row.Period.String()]
					assert.True(t, row.Amount.Equal(dec(want)), "%s = %s, want %s", row.Period, row.Amount, want)
					assert.Contains(t, row.Note, "Promotion recalculation for "+row.Period.String())
				}

				promo := rowsOfKind(t, s, "E1", ledger.KindPromotion)
				require.Len(t, promo, 1)
				assert.True(t, promo[0].Amount.IsZero())
				assert.Contains(t, promo[0].Note, "rate 1.50 -> 2.00")
				assert.Empty(t, rowsOfKind(t, s, "E1", ledger.KindPromotionAdjust), "consistent store needs no reconciliation")

				emp.AccrualRate = dec("2")
				requireBalance(t, engine, emp, tt.want)
			})
		}
	}
}

func TestRecalculateForPromotion_KeepsNonAccrualRows(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: Accruals, a leave and an adjustment
			ctx := context.Background()
			engine, _ := newEngine(s, "2024-04-10")
			emp := employee("E1", "2024-01-15", "1")

			_, err := engine.RecordLeave(ctx, emp, paidLeave("2024-02-05", "2024-02-06", "2"), "hr")
			require.NoError(t, err)
			_, err = engine.RecordAdjustment(ctx, emp, dec("0.5"), "goodwill", "hr")
			require.NoError(t, err)
			requireBalance(t, engine, emp, "1.5")

			// WHEN: Promoting retroactively from hire
			err = engine.RecalculateForPromotion(ctx, emp, dec("1"), dec("3"), date("2024-01-01"), engine.Today(), "hr")
			require.NoError(t, err)

			// THEN: Only accruals changed
			assert.Len(t, rowsOfKind(t, s, "E1", ledger.KindLeaveTaken), 1)
			assert.Len(t, rowsOfKind(t, s, "E1", ledger.KindAdjustment), 1)
			emp.AccrualRate = dec("3")
			requireBalance(t, engine, emp, "7.5")
		})
	}
}

func TestRecalculateForPromotion_FailureLeavesAccrualsIntact(t *testing.T) {
	for name, base := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed, _ := newEngine(base, "2024-04-10")
			emp := employee("E1", "2024-01-15", "1.5")
			requireBalance(t, seed, emp, "4.5")

			// GIVEN: A store that cannot write the promotion audit row
			s := &faultyStore{Store: base, wrap: func(w ledger.Writer) ledger.Writer {
				return failingAppend{Writer: w, kind: ledger.KindPromotion}
			}}
			engine, _ := newEngine(s, "2024-04-10")

			// WHEN: Promoting
			err := engine.RecalculateForPromotion(ctx, emp, dec("1.5"), dec("2"), date("2024-01-01"), engine.Today(), "hr")

			// THEN: Nothing changed
			assert.ErrorIs(t, err, ledger.ErrPersistence)
			rows := rowsOfKind(t, base, "E1", ledger.KindAccrual)
			require.Len(t, rows, 3)
			for _, row := range rows {
				assert.True(t, row.Amount.Equal(dec("1.5")))
			}
		})
	}
}

func TestPromoteEmployee_ForwardDatedKeepsOldRateUntilSwitchover(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: Four months accrued at 1.5 and a promotion dated in the future
			ctx := context.Background()
			dir := s.(ledger.Directory)
			engine, clock := newEngine(s, "2024-05-10")
			emp := employee("E1", "2024-01-15", "1.5")
			require.NoError(t, dir.SaveEmployee(ctx, emp))
			requireBalance(t, engine, emp, "6")

			// WHEN: Promoting to 2.0 effective 2024-06-15
			promoted, err := engine.PromoteEmployee(ctx, emp, dec("2"), date("2024-06-15"), engine.Today(), "hr")
			require.NoError(t, err)

			// THEN: The employee carries the new rate and the one it replaced
			stored, err := dir.GetEmployee(ctx, "E1")
			require.NoError(t, err)
			assert.True(t, stored.AccrualRate.Equal(dec("2")))
			require.NotNil(t, stored.PreviousRate)
			assert.True(t, stored.PreviousRate.Equal(dec("1.5")))
			assert.Equal(t, "2024-06-15", stored.PromotionDate.String())
			assert.True(t, promoted.AccrualRate.Equal(stored.AccrualRate))

			// WHEN: Time passes the switchover and catch-up runs
			clock.Set(date("2024-08-10").Time())
			requireBalance(t, engine, stored, "11")

			// THEN: Months before 2024-07 accrued at the old rate
			want := map[string]string{
				"2024-01": "1.5", "2024-02": "1.5", "2024-03": "1.5", "2024-04": "1.5",
				"2024-05": "1.5", "2024-06": "1.5", "2024-07": "2",
			}
			rows := rowsOfKind(t, s, "E1", ledger.KindAccrual)
			require.Len(t, rows, len(want))
			for _, row := range rows {
				assert.True(t, row.Amount.Equal(dec(want[row.Period.String()])),
					"%s accrued %s, want %s", row.Period, row.Amount, want[row.Period.String()])
			}
		})
	}
}

func TestPromoteEmployee_ReplacesRateInEffectBeforeSwitchover(t *testing.T) {
	ctx := context.Background()
	s := stores(t)["memory"]
	engine, _ := newEngine(s, "2024-05-10")

	// GIVEN: A pending promotion from 1.5 to 2.0 switching over in 2024-07
	emp := employee("E1", "2024-01-15", "2")
	emp.PromotionDate = datePtr("2024-06-15")
	emp.PreviousRate = func() *decimal.Decimal { d := dec("1.5"); return &d }()

	// WHEN: Promoting again, effective 2024-09-01
	promoted, err := engine.PromoteEmployee(ctx, emp, dec("3"), date("2024-09-01"), engine.Today(), "hr")
	require.NoError(t, err)

	// THEN: The replaced rate is the one in effect for 2024-08
	assert.True(t, promoted.PreviousRate.Equal(dec("2")))
	assert.True(t, promoted.RateFor(ledger.NewPeriod(2024, time.August)).Equal(dec("2")))
	assert.True(t, promoted.RateFor(ledger.NewPeriod(2024, time.September)).Equal(dec("3")))
}

func TestPromoteEmployee_SaveFailureRollsBackRecalculation(t *testing.T) {
	for name, base := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := base.(ledger.Directory)
			seed, _ := newEngine(base, "2024-04-10")
			emp := employee("E1", "2024-01-15", "1.5")
			require.NoError(t, dir.SaveEmployee(ctx, emp))
			requireBalance(t, seed, emp, "4.5")

			// GIVEN: A store that cannot write the employee record
			s := &faultyStore{Store: base, wrap: func(w ledger.Writer) ledger.Writer {
				return failingSave{Writer: w}
			}}
			engine, _ := newEngine(s, "2024-04-10")

			// WHEN: Promoting
			_, err := engine.PromoteEmployee(ctx, emp, dec("2"), date("2024-01-01"), engine.Today(), "hr")

			// THEN: Neither the ledger nor the employee changed
			assert.ErrorIs(t, err, ledger.ErrPersistence)
			assert.Empty(t, rowsOfKind(t, base, "E1", ledger.KindPromotion))
			for _, row := range rowsOfKind(t, base, "E1", ledger.KindAccrual) {
				assert.True(t, row.Amount.Equal(dec("1.5")))
			}
			stored, err := dir.GetEmployee(ctx, "E1")
			require.NoError(t, err)
			assert.True(t, stored.AccrualRate.Equal(dec("1.5")))
			assert.Nil(t, stored.PreviousRate)
		})
	}
}
