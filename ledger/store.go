/*
store.go - Persistence contract for ledger rows and leave records

PURPOSE:
  Defines the boundary between the engine and the database. Every
  mutating engine operation runs inside WithEmployeeTx, which serializes
  operations per employee and commits all writes or none.

KEY INTERFACES:
  Reader:    Queries usable inside and outside a transaction
  Writer:    Reader plus the writes allowed inside a transaction
  Store:     Reader plus WithEmployeeTx
  Directory: Employee records the HTTP layer and scheduler resolve refs from

UNIQUENESS:
  Append of an accrual for an (employee, period) that already has one
  fails with *DuplicateAccrualError. Storage enforces this, so it holds
  even if two processes race past the engine's own check.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite, single node
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - errors.go: Errors implementations return
  - leave/engine.go: The only caller of the Writer methods
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHistoryLimit caps History when the filter sets no limit.
const DefaultHistoryLimit = 500

// HistoryFilter narrows History. From is inclusive and To exclusive, both on
// CreatedAt.
type HistoryFilter struct {
	Kinds []Kind
	From  *time.Time
	To    *time.Time
	Limit int
}

// EffectiveLimit returns the row cap to apply.
func (f HistoryFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return f.Limit
}

// Match reports whether tx passes the filter, ignoring Limit.
func (f HistoryFilter) Match(tx Transaction) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if tx.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !tx.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// STORE
// =============================================================================

type Reader interface {
	// Transactions returns every row for the employee, oldest first.
	Transactions(ctx context.Context, ref EmployeeRef) ([]Transaction, error)

	// History returns filtered rows, newest first.
	History(ctx context.Context, ref EmployeeRef, filter HistoryFilter) ([]Transaction, error)

	// Balance returns the unrounded sum of the employee's amounts.
	Balance(ctx context.Context, ref EmployeeRef) (decimal.Decimal, error)

	// AccrualPeriods returns the periods that already carry an accrual.
	AccrualPeriods(ctx context.Context, ref EmployeeRef) ([]Period, error)

	// Leave returns ErrNotFound when id does not exist.
	Leave(ctx context.Context, id LeaveID) (LeaveRecord, error)

	// Leaves returns the employee's leave records, most recent start first.
	Leaves(ctx context.Context, ref EmployeeRef) ([]LeaveRecord, error)
}

type Writer interface {
	Reader

	// Append assigns tx.ID and persists tx. CreatedAt is set by the caller.
	Append(ctx context.Context, tx *Transaction) error

	// DeleteAccruals removes every accrual row for the employee.
	DeleteAccruals(ctx context.Context, ref EmployeeRef) (int, error)

	// DeleteByReference removes every row referencing the leave.
	DeleteByReference(ctx context.Context, ref EmployeeRef, id LeaveID) (int, error)

	// LeaveTransaction returns the leave_taken row linked to the leave, or
	// ErrNotFound.
	LeaveTransaction(ctx context.Context, id LeaveID) (Transaction, error)

	// CorrectTransaction rewrites the amount and note of an existing row.
	CorrectTransaction(ctx context.Context, id TransactionID, amount decimal.Decimal, note string) error

	// InsertLeave assigns rec.ID and persists rec.
	InsertLeave(ctx context.Context, rec *LeaveRecord) error

	UpdateLeave(ctx context.Context, rec LeaveRecord) error

	DeleteLeave(ctx context.Context, id LeaveID) error

	// SaveEmployee upserts the employee as part of the transaction. Used
	// when a directory change must commit together with ledger rows.
	SaveEmployee(ctx context.Context, emp Employee) error
}

type Store interface {
	Reader

	// WithEmployeeTx runs fn while holding the employee's lock, inside one
	// transaction. If fn returns an error, nothing fn wrote is kept.
	WithEmployeeTx(ctx context.Context, ref EmployeeRef, fn func(Writer) error) error
}

// =============================================================================
// DIRECTORY
// =============================================================================

type Directory interface {
	SaveEmployee(ctx context.Context, emp Employee) error
	// GetEmployee returns ErrNotFound when ref is unknown.
	GetEmployee(ctx context.Context, ref EmployeeRef) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}
