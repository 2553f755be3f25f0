/*
Package postgres provides a PostgreSQL-backed ledger.Store and
ledger.Directory on pgx.

CONCURRENCY:
  WithEmployeeTx opens a read-write transaction and takes
  pg_advisory_xact_lock(hashtext(ref)) before running fn. The lock is
  released by commit or rollback, so operations on one employee are
  serialized across every process sharing the database.

ACCRUAL UNIQUENESS:
  Inserts use ON CONFLICT ... DO NOTHING against idx_unique_accrual_period
  and report a skipped row as *ledger.DuplicateAccrualError. A conflicting
  insert therefore never aborts the surrounding transaction.

SCHEMA:
  migrations/ is embedded and applied with golang-migrate (see Migrate).
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/ledger"
)

const uniqueViolationCode = "23505"

// Queryer is satisfied by pgx.Tx and *pgxpool.Pool.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Queryer
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Store struct {
	pool Pool
}

var (
	_ ledger.Store     = (*Store)(nil)
	_ ledger.Directory = (*Store)(nil)
)

func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// =============================================================================
// SQL
// =============================================================================

const (
	lockEmployeeQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	transactionColumns = `id, employee_ref, kind, period, amount::text, reference_id, note, created_by, created_at`

	selectTransactionsQuery = `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE employee_ref = $1
		ORDER BY id ASC`

	balanceQuery = `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_transactions WHERE employee_ref = $1`

	accrualPeriodsQuery = `SELECT period FROM ledger_transactions
		WHERE employee_ref = $1 AND kind = 'accrual' AND period IS NOT NULL
		ORDER BY period`

	insertTransactionQuery = `INSERT INTO ledger_transactions
		(employee_ref, kind, period, amount, reference_id, note, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (employee_ref, period) WHERE kind = 'accrual' DO NOTHING
		RETURNING id`

	deleteAccrualsQuery = `DELETE FROM ledger_transactions WHERE employee_ref = $1 AND kind = 'accrual'`

	deleteByReferenceQuery = `DELETE FROM ledger_transactions WHERE employee_ref = $1 AND reference_id = $2`

	leaveTransactionQuery = `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE reference_id = $1 AND kind = 'leave_taken'
		ORDER BY id ASC LIMIT 1`

	correctTransactionQuery = `UPDATE ledger_transactions SET amount = $1, note = $2 WHERE id = $3`

	leaveColumns = `id, employee_ref, date_from, date_to, days::text, paid, leave_type, approver, recorder, reason, created_by, created_at, updated_at`

	selectLeaveQuery = `SELECT ` + leaveColumns + ` FROM leave_records WHERE id = $1`

	selectLeavesQuery = `SELECT ` + leaveColumns + ` FROM leave_records
		WHERE employee_ref = $1
		ORDER BY date_from DESC, id DESC`

	insertLeaveQuery = `INSERT INTO leave_records
		(employee_ref, date_from, date_to, days, paid, leave_type, approver, recorder, reason, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	updateLeaveQuery = `UPDATE leave_records SET
		date_from = $1, date_to = $2, days = $3, paid = $4,
		leave_type = $5, approver = $6, recorder = $7, reason = $8, updated_at = $9
		WHERE id = $10`

	deleteLeaveQuery = `DELETE FROM leave_records WHERE id = $1`

	employeeColumns = `ref, name, hire_date, accrual_rate::text, promotion_date, previous_rate::text, left_date, status, created_at, updated_at`

	upsertEmployeeQuery = `INSERT INTO employees
		(ref, name, hire_date, accrual_rate, promotion_date, previous_rate, left_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (ref) DO UPDATE SET
			name = EXCLUDED.name,
			hire_date = EXCLUDED.hire_date,
			accrual_rate = EXCLUDED.accrual_rate,
			promotion_date = EXCLUDED.promotion_date,
			previous_rate = EXCLUDED.previous_rate,
			left_date = EXCLUDED.left_date,
			status = EXCLUDED.status,
			updated_at = now()`

	selectEmployeeQuery = `SELECT ` + employeeColumns + ` FROM employees WHERE ref = $1`

	listEmployeesQuery = `SELECT ` + employeeColumns + ` FROM employees ORDER BY ref`
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithEmployeeTx runs fn in a read-write transaction holding the employee's
// advisory lock.
func (s *Store) WithEmployeeTx(ctx context.Context, ref ledger.EmployeeRef, fn func(ledger.Writer) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return ledger.Persistence("begin transaction", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, lockEmployeeQuery, string(ref)); err != nil {
		return ledger.Persistence("lock employee", err)
	}

	if err := fn(&writer{reader{q: tx}}); err != nil {
		done = true
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, ledger.Persistence("rollback", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Persistence("commit transaction", err)
	}
	done = true
	return nil
}

func (s *Store) Transactions(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Transaction, error) {
	return reader{q: s.pool}.Transactions(ctx, ref)
}

func (s *Store) History(ctx context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	return reader{q: s.pool}.History(ctx, ref, filter)
}

func (s *Store) Balance(ctx context.Context, ref ledger.EmployeeRef) (decimal.Decimal, error) {
	return reader{q: s.pool}.Balance(ctx, ref)
}

func (s *Store) AccrualPeriods(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Period, error) {
	return reader{q: s.pool}.AccrualPeriods(ctx, ref)
}

func (s *Store) Leave(ctx context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	return reader{q: s.pool}.Leave(ctx, id)
}

func (s *Store) Leaves(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	return reader{q: s.pool}.Leaves(ctx, ref)
}

// =============================================================================
// READS
// =============================================================================

type reader struct {
	q Queryer
}

type writer struct {
	reader
}

func (r reader) Transactions(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, selectTransactionsQuery, string(ref))
}

// historyQuery builds the filtered history statement and its arguments.
func historyQuery(ref ledger.EmployeeRef, filter ledger.HistoryFilter) (string, []any) {
	var (
		where = []string{"employee_ref = $1"}
		args  = []any{string(ref)}
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		where = append(where, "kind = ANY("+next(kinds)+")")
	}
	if filter.From != nil {
		where = append(where, "created_at >= "+next(filter.From.UTC()))
	}
	if filter.To != nil {
		where = append(where, "created_at < "+next(filter.To.UTC()))
	}
	limit := next(filter.EffectiveLimit())

	query := `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT ` + limit
	return query, args
}

func (r reader) History(ctx context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	query, args := historyQuery(ref, filter)
	return r.queryTransactions(ctx, query, args...)
}

func (r reader) Balance(ctx context.Context, ref ledger.EmployeeRef) (decimal.Decimal, error) {
	var raw string
	if err := r.q.QueryRow(ctx, balanceQuery, string(ref)).Scan(&raw); err != nil {
		return decimal.Zero, ledger.Persistence("query balance", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ledger.Persistence("parse balance", err)
	}
	return total, nil
}

func (r reader) AccrualPeriods(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Period, error) {
	rows, err := r.q.Query(ctx, accrualPeriodsQuery, string(ref))
	if err != nil {
		return nil, ledger.Persistence("query accrual periods", err)
	}
	defer rows.Close()

	var periods []ledger.Period
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, ledger.Persistence("scan period", err)
		}
		p, err := ledger.ParsePeriod(raw)
		if err != nil {
			return nil, ledger.Persistence("parse period", err)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Persistence("query accrual periods", err)
	}
	return periods, nil
}

func (r reader) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, ledger.Persistence("query transactions", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Persistence("query transactions", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		id          int64
		ref, kind   string
		period      *string
		amount      string
		referenceID *int64
	)
	err := row.Scan(&id, &ref, &kind, &period, &amount, &referenceID, &tx.Note, &tx.CreatedBy, &tx.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tx, err
	}
	if err != nil {
		return tx, ledger.Persistence("scan transaction", err)
	}

	tx.ID = ledger.TransactionID(id)
	tx.EmployeeRef = ledger.EmployeeRef(ref)
	tx.Kind = ledger.Kind(kind)
	if period != nil {
		p, err := ledger.ParsePeriod(*period)
		if err != nil {
			return tx, ledger.Persistence("parse period", err)
		}
		tx.Period = &p
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, ledger.Persistence("parse amount", err)
	}
	if referenceID != nil {
		leaveID := ledger.LeaveID(*referenceID)
		tx.ReferenceID = &leaveID
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (r reader) Leave(ctx context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	rec, err := scanLeave(r.q.QueryRow(ctx, selectLeaveQuery, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.LeaveRecord{}, fmt.Errorf("leave %d: %w", id, ledger.ErrNotFound)
	}
	return rec, err
}

func (r reader) Leaves(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	rows, err := r.q.Query(ctx, selectLeavesQuery, string(ref))
	if err != nil {
		return nil, ledger.Persistence("query leaves", err)
	}
	defer rows.Close()

	var out []ledger.LeaveRecord
	for rows.Next() {
		rec, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Persistence("query leaves", err)
	}
	return out, nil
}

func scanLeave(row rowScanner) (ledger.LeaveRecord, error) {
	var (
		rec      ledger.LeaveRecord
		id       int64
		ref      string
		from, to time.Time
		days     string
	)
	err := row.Scan(&id, &ref, &from, &to, &days, &rec.Paid,
		&rec.LeaveType, &rec.Approver, &rec.Recorder, &rec.Reason,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, ledger.Persistence("scan leave", err)
	}

	rec.ID = ledger.LeaveID(id)
	rec.EmployeeRef = ledger.EmployeeRef(ref)
	rec.DateFrom = ledger.DateOf(from)
	rec.DateTo = ledger.DateOf(to)
	if rec.Days, err = decimal.NewFromString(days); err != nil {
		return rec, ledger.Persistence("parse leave days", err)
	}
	return rec, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (w *writer) Append(ctx context.Context, tx *ledger.Transaction) error {
	var period *string
	if tx.Period != nil {
		p := tx.Period.String()
		period = &p
	}
	var referenceID *int64
	if tx.ReferenceID != nil {
		id := int64(*tx.ReferenceID)
		referenceID = &id
	}

	var id int64
	err := w.q.QueryRow(ctx, insertTransactionQuery,
		string(tx.EmployeeRef),
		string(tx.Kind),
		period,
		tx.Amount.String(),
		referenceID,
		tx.Note,
		tx.CreatedBy,
		tx.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if tx.Period != nil && (errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err)) {
			return &ledger.DuplicateAccrualError{EmployeeRef: tx.EmployeeRef, Period: *tx.Period}
		}
		return ledger.Persistence("append transaction", err)
	}
	tx.ID = ledger.TransactionID(id)
	return nil
}

func (w *writer) DeleteAccruals(ctx context.Context, ref ledger.EmployeeRef) (int, error) {
	return w.exec(ctx, "delete accruals", deleteAccrualsQuery, string(ref))
}

func (w *writer) DeleteByReference(ctx context.Context, ref ledger.EmployeeRef, id ledger.LeaveID) (int, error) {
	return w.exec(ctx, "delete leave transactions", deleteByReferenceQuery, string(ref), int64(id))
}

func (w *writer) LeaveTransaction(ctx context.Context, id ledger.LeaveID) (ledger.Transaction, error) {
	tx, err := scanTransaction(w.q.QueryRow(ctx, leaveTransactionQuery, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, fmt.Errorf("transaction for leave %d: %w", id, ledger.ErrNotFound)
	}
	return tx, err
}

func (w *writer) CorrectTransaction(ctx context.Context, id ledger.TransactionID, amount decimal.Decimal, note string) error {
	n, err := w.exec(ctx, "correct transaction", correctTransactionQuery, amount.String(), note, int64(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (w *writer) InsertLeave(ctx context.Context, rec *ledger.LeaveRecord) error {
	var id int64
	err := w.q.QueryRow(ctx, insertLeaveQuery,
		string(rec.EmployeeRef),
		rec.DateFrom.Time(),
		rec.DateTo.Time(),
		rec.Days.String(),
		rec.Paid,
		rec.LeaveType,
		rec.Approver,
		rec.Recorder,
		rec.Reason,
		rec.CreatedBy,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return ledger.Persistence("insert leave", err)
	}
	rec.ID = ledger.LeaveID(id)
	return nil
}

func (w *writer) UpdateLeave(ctx context.Context, rec ledger.LeaveRecord) error {
	n, err := w.exec(ctx, "update leave", updateLeaveQuery,
		rec.DateFrom.Time(),
		rec.DateTo.Time(),
		rec.Days.String(),
		rec.Paid,
		rec.LeaveType,
		rec.Approver,
		rec.Recorder,
		rec.Reason,
		rec.UpdatedAt.UTC(),
		int64(rec.ID),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("leave %d: %w", rec.ID, ledger.ErrNotFound)
	}
	return nil
}

func (w *writer) DeleteLeave(ctx context.Context, id ledger.LeaveID) error {
	n, err := w.exec(ctx, "delete leave", deleteLeaveQuery, int64(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("leave %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (w *writer) exec(ctx context.Context, op, query string, args ...any) (int, error) {
	tag, err := w.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, ledger.Persistence(op, err)
	}
	return int(tag.RowsAffected()), nil
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	return saveEmployee(ctx, s.pool, emp)
}

// SaveEmployee upserts the employee inside the open transaction.
func (w *writer) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	return saveEmployee(ctx, w.q, emp)
}

func saveEmployee(ctx context.Context, q Queryer, emp ledger.Employee) error {
	status := emp.Status
	if status == "" {
		status = ledger.StatusActive
	}
	_, err := q.Exec(ctx, upsertEmployeeQuery,
		string(emp.Ref),
		emp.Name,
		dateArg(emp.HireDate),
		emp.AccrualRate.String(),
		dateArg(emp.PromotionDate),
		decimalArg(emp.PreviousRate),
		dateArg(emp.LeftDate),
		string(status),
	)
	if err != nil {
		return ledger.Persistence("save employee", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, ref ledger.EmployeeRef) (ledger.Employee, error) {
	emp, err := scanEmployee(s.pool.QueryRow(ctx, selectEmployeeQuery, string(ref)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Employee{}, fmt.Errorf("employee %s: %w", ref, ledger.ErrNotFound)
	}
	return emp, err
}

func (s *Store) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	rows, err := s.pool.Query(ctx, listEmployeesQuery)
	if err != nil {
		return nil, ledger.Persistence("list employees", err)
	}
	defer rows.Close()

	var out []ledger.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Persistence("list employees", err)
	}
	return out, nil
}

func scanEmployee(row rowScanner) (ledger.Employee, error) {
	var (
		emp                          ledger.Employee
		ref, rate, status            string
		hireDate, promoDate, leftDay *time.Time
		previousRate                 *string
	)
	err := row.Scan(&ref, &emp.Name, &hireDate, &rate, &promoDate, &previousRate, &leftDay, &status, &emp.CreatedAt, &emp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return emp, err
	}
	if err != nil {
		return emp, ledger.Persistence("scan employee", err)
	}

	emp.Ref = ledger.EmployeeRef(ref)
	emp.Status = ledger.Status(status)
	if emp.AccrualRate, err = decimal.NewFromString(rate); err != nil {
		return emp, ledger.Persistence("parse accrual rate", err)
	}
	if previousRate != nil {
		prev, err := decimal.NewFromString(*previousRate)
		if err != nil {
			return emp, ledger.Persistence("parse previous rate", err)
		}
		emp.PreviousRate = &prev
	}
	emp.HireDate = datePtr(hireDate)
	emp.PromotionDate = datePtr(promoDate)
	emp.LeftDate = datePtr(leftDay)
	return emp, nil
}

// Helper functions

func dateArg(d *ledger.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func datePtr(t *time.Time) *ledger.Date {
	if t == nil {
		return nil
	}
	d := ledger.DateOf(*t)
	return &d
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
