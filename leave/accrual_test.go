package leave_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/ledger/store"
	"github.com/warp/leave-ledger/store/sqlite"
)

// =============================================================================
// SCHEDULE
// =============================================================================

func TestAccrualPeriods(t *testing.T) {
	tests := []struct {
		name string
		emp  ledger.Employee
		asOf string
		want []string
	}{
		{
			name: "completed months since hire",
			emp:  employee("E1", "2024-01-15", "1.5"),
			asOf: "2024-04-10",
			want: []string{"2024-01", "2024-02", "2024-03"},
		},
		{
			name: "still in hire month",
			emp:  employee("E1", "2024-01-15", "1.5"),
			asOf: "2024-01-31",
			want: nil,
		},
		{
			name: "first of month closes previous month",
			emp:  employee("E1", "2024-01-15", "1.5"),
			asOf: "2024-02-01",
			want: []string{"2024-01"},
		},
		{
			name: "departure month excluded",
			emp: func() ledger.Employee {
				e := employee("E1", "2024-01-15", "1.5")
				e.LeftDate = datePtr("2024-02-20")
				e.Status = ledger.StatusLeft
				return e
			}(),
			asOf: "2024-04-10",
			want: []string{"2024-01"},
		},
		{
			name: "left without date stops at asOf",
			emp: func() ledger.Employee {
				e := employee("E1", "2024-01-15", "1.5")
				e.Status = ledger.StatusLeft
				return e
			}(),
			asOf: "2024-03-05",
			want: []string{"2024-01", "2024-02"},
		},
		{
			name: "no hire date",
			emp:  ledger.Employee{Ref: "E1", AccrualRate: dec("1.5")},
			asOf: "2024-04-10",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, p := range leave.AccrualPeriods(tt.emp, date(tt.asOf)) {
				got = append(got, p.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// CATCH-UP
// =============================================================================

func TestCatchUpAccruals_CreatesMissingMonthsOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: Hired 2024-01-15 at 1.5 days/month, today 2024-04-10
			ctx := context.Background()
			engine, _ := newEngine(s, "2024-04-10")
			emp := employee("E1", "2024-01-15", "1.5")

			// WHEN: Catching up twice
			first, err := engine.CatchUpAccruals(ctx, emp, engine.Today())
			require.NoError(t, err)
			second, err := engine.CatchUpAccruals(ctx, emp, engine.Today())
			require.NoError(t, err)

			// THEN: Three rows the first time, none the second
			assert.Equal(t, 3, first)
			assert.Equal(t, 0, second)

			rows := rowsOfKind(t, s, "E1", ledger.KindAccrual)
			require.Len(t, rows, 3)
			for i, want := range []string{"2024-01", "2024-02", "2024-03"} {
				assert.Equal(t, want, rows[i].Period.String())
				assert.True(t, rows[i].Amount.Equal(dec("1.5")))
				assert.Equal(t, "Auto-accrual for "+want, rows[i].Note)
			}
			requireBalance(t, engine, emp, "4.5")
		})
	}
}

func TestCatchUpAccruals_StopsBeforeDepartureMonth(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			engine, _ := newEngine(s, "2024-04-10")
			emp := employee("E1", "2024-01-15", "1.5")
			emp.Status = ledger.StatusLeft
			emp.LeftDate = datePtr("2024-02-20")

			n, err := engine.CatchUpAccruals(context.Background(), emp, engine.Today())
			require.NoError(t, err)

			assert.Equal(t, 1, n)
			requireBalance(t, engine, emp, "1.5")
		})
	}
}

func TestCatchUpAccruals_RoundsRate(t *testing.T) {
	s := store.NewMemory()
	engine, _ := newEngine(s, "2024-02-10")
	emp := employee("E1", "2024-01-01", "1.666")

	_, err := engine.CatchUpAccruals(context.Background(), emp, engine.Today())
	require.NoError(t, err)

	rows := rowsOfKind(t, s, "E1", ledger.KindAccrual)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dec("1.67")))
}

func TestCatchUpAccruals_RequiresEmployeeRef(t *testing.T) {
	engine, _ := newEngine(store.NewMemory(), "2024-04-10")

	_, err := engine.CatchUpAccruals(context.Background(), ledger.Employee{}, engine.Today())
	assert.ErrorIs(t, err, ledger.ErrInvalidEmployee)
}

func TestCatchUpAccruals_DuplicateIsLoggedAndSkipped(t *testing.T) {
	for name, base := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: January already accrued, and a writer that cannot see it
			ctx := context.Background()
			emp := employee("E1", "2024-01-15", "1.5")
			seed, _ := newEngine(base, "2024-02-10")
			_, err := seed.CatchUpAccruals(ctx, emp, seed.Today())
			require.NoError(t, err)

			core, logs := observer.New(zapcore.ErrorLevel)
			s := &faultyStore{Store: base, wrap: func(w ledger.Writer) ledger.Writer { return blindAccruals{w} }}
			engine, _ := newEngine(s, "2024-03-10", leave.WithLogger(zap.New(core)))

			// WHEN: Catching up through February
			n, err := engine.CatchUpAccruals(ctx, emp, engine.Today())

			// THEN: January is skipped with an error log, February is created
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Len(t, rowsOfKind(t, base, "E1", ledger.KindAccrual), 2)

			dups := logs.FilterField(zap.String("error_kind", "duplicate_accrual_period")).All()
			require.Len(t, dups, 1)
			assert.Equal(t, "2024-01", dups[0].ContextMap()["period"])
		})
	}
}

func TestGetBalance_CatchesUpAsTimePasses(t *testing.T) {
	s := store.NewMemory()
	engine, clock := newEngine(s, "2024-02-10")
	emp := employee("E1", "2024-01-15", "2")

	requireBalance(t, engine, emp, "2")

	clock.Set(date("2024-05-02").Time())
	requireBalance(t, engine, emp, "8")
}

func TestGetBalance_CatchUpFailureReturnsStoredSum(t *testing.T) {
	// GIVEN: One stored accrual and a store that rejects new accruals
	ctx := context.Background()
	base := store.NewMemory()
	emp := employee("E1", "2024-01-15", "1.5")
	seed, _ := newEngine(base, "2024-02-10")
	_, err := seed.CatchUpAccruals(ctx, emp, seed.Today())
	require.NoError(t, err)

	s := &faultyStore{Store: base, wrap: func(w ledger.Writer) ledger.Writer {
		return failingAppend{Writer: w, kind: ledger.KindAccrual}
	}}
	engine, _ := newEngine(s, "2024-04-10")

	// WHEN: Reading the balance
	// THEN: The stored rows are summed without error
	requireBalance(t, engine, emp, "1.5")
}

func TestCatchUpAll_ContinuesPastFailures(t *testing.T) {
	engine, _ := newEngine(store.NewMemory(), "2024-04-10")
	employees := []ledger.Employee{
		employee("E1", "2024-01-15", "1.5"),
		{Name: "missing ref", HireDate: datePtr("2024-01-01")},
		employee("E3", "2024-03-01", "2"),
	}

	result := engine.CatchUpAll(context.Background(), employees, engine.Today())

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 4, result.Created)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[""], ledger.ErrInvalidEmployee)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestCatchUpAccruals_ConcurrentCallsCreateEachPeriodOnce(t *testing.T) {
	// GIVEN: A file database shared by many goroutines
	db, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	engine, _ := newEngine(db, "2024-04-10")
	emp := employee("E1", "2024-01-15", "1.5")

	// WHEN: Twenty catch-ups race
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := engine.CatchUpAccruals(context.Background(), emp, engine.Today())
			mu.Lock()
			defer mu.Unlock()
			created += n
			if err != nil {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly one row per month exists
	require.Empty(t, errs, fmt.Sprint(errs))
	assert.Equal(t, 3, created)
	assert.Len(t, rowsOfKind(t, db, "E1", ledger.KindAccrual), 3)
	requireBalance(t, engine, emp, "4.5")
}
