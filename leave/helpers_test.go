package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/ledger/store"
	"github.com/warp/leave-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) ledger.Date {
	d, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *ledger.Date {
	d := date(s)
	return &d
}

// employee hired on hire at rate days per month.
func employee(ref, hire, rate string) ledger.Employee {
	return ledger.Employee{
		Ref:         ledger.EmployeeRef(ref),
		Name:        ref,
		HireDate:    datePtr(hire),
		AccrualRate: dec(rate),
		Status:      ledger.StatusActive,
	}
}

func clockAt(day string) *ledger.FixedClock {
	return ledger.NewFixedClock(date(day).Time().Add(9 * time.Hour))
}

// stores returns a fresh instance of every Store implementation.
func stores(t *testing.T) map[string]ledger.Store {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]ledger.Store{
		"memory": store.NewMemory(),
		"sqlite": db,
	}
}

func newEngine(s ledger.Store, today string, opts ...leave.Option) (*leave.Engine, *ledger.FixedClock) {
	clock := clockAt(today)
	opts = append([]leave.Option{leave.WithClock(clock), leave.WithLogger(zap.NewNop())}, opts...)
	return leave.NewEngine(s, opts...), clock
}

func rowsOfKind(t *testing.T, s ledger.Store, ref ledger.EmployeeRef, kind ledger.Kind) []ledger.Transaction {
	t.Helper()
	txs, err := s.Transactions(context.Background(), ref)
	require.NoError(t, err)
	var out []ledger.Transaction
	for _, tx := range txs {
		if tx.Kind == kind {
			out = append(out, tx)
		}
	}
	return out
}

func requireBalance(t *testing.T, e *leave.Engine, emp ledger.Employee, want string) {
	t.Helper()
	got, err := e.GetBalance(context.Background(), emp)
	require.NoError(t, err)
	require.True(t, got.Equal(dec(want)), "balance = %s, want %s", got, want)
}

// =============================================================================
// FAULTY STORES
// =============================================================================

// faultyStore wraps a Store and lets a test intercept writes.
type faultyStore struct {
	ledger.Store
	wrap func(ledger.Writer) ledger.Writer
}

func (s *faultyStore) WithEmployeeTx(ctx context.Context, ref ledger.EmployeeRef, fn func(ledger.Writer) error) error {
	return s.Store.WithEmployeeTx(ctx, ref, func(w ledger.Writer) error {
		return fn(s.wrap(w))
	})
}

var errDiskFull = errors.New("disk full")

// failingAppend fails every Append of the given kind.
type failingAppend struct {
	ledger.Writer
	kind ledger.Kind
}

func (w failingAppend) Append(ctx context.Context, tx *ledger.Transaction) error {
	if tx.Kind == w.kind {
		return ledger.Persistence("append transaction", errDiskFull)
	}
	return w.Writer.Append(ctx, tx)
}

// failingSave fails every SaveEmployee inside the transaction.
type failingSave struct {
	ledger.Writer
}

func (failingSave) SaveEmployee(context.Context, ledger.Employee) error {
	return ledger.Persistence("save employee", errDiskFull)
}

// blindAccruals hides existing accrual periods, as if another process
// inserted them after this one looked.
type blindAccruals struct {
	ledger.Writer
}

func (blindAccruals) AccrualPeriods(context.Context, ledger.EmployeeRef) ([]ledger.Period, error) {
	return nil, nil
}
