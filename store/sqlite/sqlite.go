/*
Package sqlite provides a SQLite-backed ledger.Store and ledger.Directory.

PURPOSE:
  Single-node persistence for the leave ledger. The same schema is
  mirrored for PostgreSQL in store/postgres.

KEY TABLES:
  ledger_transactions: Every balance change (accrual, leave, override, ...)
  leave_records:       Approved absences, linked by reference_id
  employees:           Employee directory the API and scheduler read from

INDEXES:
  - idx_unique_accrual_period: At most one accrual per (employee, period).
    This is the storage backstop for the catch-up check-then-insert.
  - idx_ledger_employee: Balance and history (hot path)
  - idx_ledger_reference: Leave edit/delete lookups

CONCURRENCY:
  WithEmployeeTx takes an in-process lock keyed by employee, then opens the
  SQL transaction with BEGIN IMMEDIATE (_txlock=immediate) so the write lock
  is taken up front. Other processes on the same file wait up to
  _busy_timeout instead of failing with SQLITE_BUSY mid-transaction.

IN-MEMORY DATABASES:
  ":memory:" gives each connection its own database, so the pool is pinned
  to one connection. Inside a transaction every read goes through the
  sql.Tx, never the pool.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := leave.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/postgres: PostgreSQL implementation
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/ledger"
)

// timestampLayout is fixed width so text comparison orders correctly.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dateLayout = "2006-01-02"

// Store implements ledger.Store and ledger.Directory using SQLite.
type Store struct {
	db    *sql.DB
	locks ledger.EmployeeLocks
}

var (
	_ ledger.Store     = (*Store)(nil)
	_ ledger.Directory = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithTimeout(dbPath, 5*time.Second)
}

// NewWithTimeout is New with an explicit busy timeout.
func NewWithTimeout(dbPath string, busyTimeout time.Duration) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=%d",
		dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		ref TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		hire_date TEXT,
		accrual_rate TEXT NOT NULL DEFAULT '0',
		promotion_date TEXT,
		previous_rate TEXT,
		left_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_ref TEXT NOT NULL,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		days TEXT NOT NULL,
		paid INTEGER NOT NULL,
		leave_type TEXT,
		approver TEXT,
		recorder TEXT,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_records_employee
		ON leave_records(employee_ref, date_from DESC);

	CREATE TABLE IF NOT EXISTS ledger_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_ref TEXT NOT NULL,
		kind TEXT NOT NULL,
		period TEXT,
		amount TEXT NOT NULL,
		reference_id INTEGER,
		note TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- One accrual per employee per month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_accrual_period
		ON ledger_transactions(employee_ref, period)
		WHERE kind = 'accrual';

	CREATE INDEX IF NOT EXISTS idx_ledger_employee
		ON ledger_transactions(employee_ref, id);

	CREATE INDEX IF NOT EXISTS idx_ledger_employee_created
		ON ledger_transactions(employee_ref, created_at DESC);

	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_transactions(reference_id) WHERE reference_id IS NOT NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.addColumnIfMissing("employees", "previous_rate", "TEXT")
}

// addColumnIfMissing upgrades databases created before the column existed.
func (s *Store) addColumnIfMissing(table, column, decl string) error {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// =============================================================================
// QUERYER - *sql.DB outside a transaction, *sql.Tx inside
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader implements ledger.Reader over any queryer.
type reader struct {
	q queryer
}

// writer implements ledger.Writer inside a transaction.
type writer struct {
	reader
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithEmployeeTx executes fn inside a BEGIN IMMEDIATE transaction while
// holding the employee's lock.
func (s *Store) WithEmployeeTx(ctx context.Context, ref ledger.EmployeeRef, fn func(ledger.Writer) error) error {
	unlock := s.locks.Lock(ref)
	defer unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Persistence("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&writer{reader{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return ledger.Persistence("commit transaction", err)
	}
	return nil
}

func (s *Store) Transactions(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Transaction, error) {
	return reader{q: s.db}.Transactions(ctx, ref)
}

func (s *Store) History(ctx context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	return reader{q: s.db}.History(ctx, ref, filter)
}

func (s *Store) Balance(ctx context.Context, ref ledger.EmployeeRef) (decimal.Decimal, error) {
	return reader{q: s.db}.Balance(ctx, ref)
}

func (s *Store) AccrualPeriods(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Period, error) {
	return reader{q: s.db}.AccrualPeriods(ctx, ref)
}

func (s *Store) Leave(ctx context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	return reader{q: s.db}.Leave(ctx, id)
}

func (s *Store) Leaves(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	return reader{q: s.db}.Leaves(ctx, ref)
}

// =============================================================================
// READS
// =============================================================================

const transactionColumns = `id, employee_ref, kind, period, amount, reference_id, note, created_by, created_at`

func (r reader) Transactions(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE employee_ref = ?
		ORDER BY id ASC`
	return r.queryTransactions(ctx, query, string(ref))
}

func (r reader) History(ctx context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	var (
		where = []string{"employee_ref = ?"}
		args  = []any{string(ref)}
	)
	if len(filter.Kinds) > 0 {
		marks := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(*filter.To))
	}
	args = append(args, filter.EffectiveLimit())

	query := `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	return r.queryTransactions(ctx, query, args...)
}

// Balance sums in Go because SQLite would sum the TEXT amounts as floats.
func (r reader) Balance(ctx context.Context, ref ledger.EmployeeRef) (decimal.Decimal, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT amount FROM ledger_transactions WHERE employee_ref = ?", string(ref))
	if err != nil {
		return decimal.Zero, ledger.Persistence("query balance", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, ledger.Persistence("scan amount", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, ledger.Persistence("parse amount", err)
		}
		total = total.Add(d)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, ledger.Persistence("query balance", err)
	}
	return total, nil
}

func (r reader) AccrualPeriods(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Period, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT period FROM ledger_transactions WHERE employee_ref = ? AND kind = 'accrual' AND period IS NOT NULL ORDER BY period",
		string(ref))
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
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.Persistence("query transactions", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Persistence("query transactions", err)
	}
	return transactions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		ref         string
		kind        string
		period      sql.NullString
		amount      string
		referenceID sql.NullInt64
		note        sql.NullString
		createdBy   sql.NullString
		createdAt   string
	)

	err := row.Scan(&tx.ID, &ref, &kind, &period, &amount, &referenceID, &note, &createdBy, &createdAt)
	if err != nil {
		return tx, ledger.Persistence("scan transaction", err)
	}

	tx.EmployeeRef = ledger.EmployeeRef(ref)
	tx.Kind = ledger.Kind(kind)
	if period.Valid {
		p, err := ledger.ParsePeriod(period.String)
		if err != nil {
			return tx, ledger.Persistence("parse period", err)
		}
		tx.Period = &p
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, ledger.Persistence("parse amount", err)
	}
	if referenceID.Valid {
		id := ledger.LeaveID(referenceID.Int64)
		tx.ReferenceID = &id
	}
	tx.Note = note.String
	tx.CreatedBy = createdBy.String
	if tx.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return tx, ledger.Persistence("parse created_at", err)
	}
	return tx, nil
}

const leaveColumns = `id, employee_ref, date_from, date_to, days, paid, leave_type, approver, recorder, reason, created_by, created_at, updated_at`

func (r reader) Leave(ctx context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+leaveColumns+" FROM leave_records WHERE id = ?", int64(id))
	rec, err := scanLeave(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.LeaveRecord{}, fmt.Errorf("leave %d: %w", id, ledger.ErrNotFound)
	}
	return rec, err
}

func (r reader) Leaves(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+leaveColumns+" FROM leave_records WHERE employee_ref = ? ORDER BY date_from DESC, id DESC",
		string(ref))
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

func scanLeave(row scanner) (ledger.LeaveRecord, error) {
	var (
		rec                                   ledger.LeaveRecord
		ref, from, to, days                   string
		leaveType, approver, recorder, reason sql.NullString
		createdBy                             sql.NullString
		createdAt, updatedAt                  string
	)

	err := row.Scan(&rec.ID, &ref, &from, &to, &days, &rec.Paid,
		&leaveType, &approver, &recorder, &reason, &createdBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, ledger.Persistence("scan leave", err)
	}

	rec.EmployeeRef = ledger.EmployeeRef(ref)
	if rec.DateFrom, err = ledger.ParseDate(from); err != nil {
		return rec, ledger.Persistence("parse leave", err)
	}
	if rec.DateTo, err = ledger.ParseDate(to); err != nil {
		return rec, ledger.Persistence("parse leave", err)
	}
	if rec.Days, err = decimal.NewFromString(days); err != nil {
		return rec, ledger.Persistence("parse leave", err)
	}
	rec.LeaveType = leaveType.String
	rec.Approver = approver.String
	rec.Recorder = recorder.String
	rec.Reason = reason.String
	rec.CreatedBy = createdBy.String
	if rec.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return rec, ledger.Persistence("parse created_at", err)
	}
	if rec.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return rec, ledger.Persistence("parse updated_at", err)
	}
	return rec, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (w *writer) Append(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		INSERT INTO ledger_transactions
		(employee_ref, kind, period, amount, reference_id, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var period sql.NullString
	if tx.Period != nil {
		period = sql.NullString{String: tx.Period.String(), Valid: true}
	}
	var referenceID sql.NullInt64
	if tx.ReferenceID != nil {
		referenceID = sql.NullInt64{Int64: int64(*tx.ReferenceID), Valid: true}
	}

	res, err := w.q.ExecContext(ctx, query,
		string(tx.EmployeeRef),
		string(tx.Kind),
		period,
		tx.Amount.String(),
		referenceID,
		nullString(tx.Note),
		nullString(tx.CreatedBy),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && tx.Period != nil {
			return &ledger.DuplicateAccrualError{EmployeeRef: tx.EmployeeRef, Period: *tx.Period}
		}
		return ledger.Persistence("append transaction", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Persistence("append transaction", err)
	}
	tx.ID = ledger.TransactionID(id)
	return nil
}

func (w *writer) DeleteAccruals(ctx context.Context, ref ledger.EmployeeRef) (int, error) {
	return w.exec(ctx, "delete accruals",
		"DELETE FROM ledger_transactions WHERE employee_ref = ? AND kind = 'accrual'", string(ref))
}

func (w *writer) DeleteByReference(ctx context.Context, ref ledger.EmployeeRef, id ledger.LeaveID) (int, error) {
	return w.exec(ctx, "delete leave transactions",
		"DELETE FROM ledger_transactions WHERE employee_ref = ? AND reference_id = ?", string(ref), int64(id))
}

func (w *writer) LeaveTransaction(ctx context.Context, id ledger.LeaveID) (ledger.Transaction, error) {
	row := w.q.QueryRowContext(ctx, `SELECT `+transactionColumns+`
		FROM ledger_transactions
		WHERE reference_id = ? AND kind = 'leave_taken'
		ORDER BY id ASC LIMIT 1`, int64(id))
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, fmt.Errorf("transaction for leave %d: %w", id, ledger.ErrNotFound)
	}
	return tx, err
}

func (w *writer) CorrectTransaction(ctx context.Context, id ledger.TransactionID, amount decimal.Decimal, note string) error {
	n, err := w.exec(ctx, "correct transaction",
		"UPDATE ledger_transactions SET amount = ?, note = ? WHERE id = ?", amount.String(), note, int64(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (w *writer) InsertLeave(ctx context.Context, rec *ledger.LeaveRecord) error {
	query := `
		INSERT INTO leave_records
		(employee_ref, date_from, date_to, days, paid, leave_type, approver, recorder, reason, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := w.q.ExecContext(ctx, query,
		string(rec.EmployeeRef),
		rec.DateFrom.String(),
		rec.DateTo.String(),
		rec.Days.String(),
		rec.Paid,
		nullString(rec.LeaveType),
		nullString(rec.Approver),
		nullString(rec.Recorder),
		nullString(rec.Reason),
		nullString(rec.CreatedBy),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return ledger.Persistence("insert leave", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Persistence("insert leave", err)
	}
	rec.ID = ledger.LeaveID(id)
	return nil
}

func (w *writer) UpdateLeave(ctx context.Context, rec ledger.LeaveRecord) error {
	query := `
		UPDATE leave_records SET
			date_from = ?, date_to = ?, days = ?, paid = ?,
			leave_type = ?, approver = ?, recorder = ?, reason = ?, updated_at = ?
		WHERE id = ?
	`
	n, err := w.exec(ctx, "update leave", query,
		rec.DateFrom.String(),
		rec.DateTo.String(),
		rec.Days.String(),
		rec.Paid,
		nullString(rec.LeaveType),
		nullString(rec.Approver),
		nullString(rec.Recorder),
		nullString(rec.Reason),
		formatTime(rec.UpdatedAt),
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
	n, err := w.exec(ctx, "delete leave", "DELETE FROM leave_records WHERE id = ?", int64(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("leave %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (w *writer) exec(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := w.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, ledger.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ledger.Persistence(op, err)
	}
	return int(n), nil
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

// SaveEmployee upserts an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	return saveEmployee(ctx, s.db, emp)
}

// SaveEmployee upserts an employee inside the open transaction.
func (w *writer) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	return saveEmployee(ctx, w.q, emp)
}

func saveEmployee(ctx context.Context, q queryer, emp ledger.Employee) error {
	query := `
		INSERT INTO employees (ref, name, hire_date, accrual_rate, promotion_date, previous_rate, left_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			name = excluded.name,
			hire_date = excluded.hire_date,
			accrual_rate = excluded.accrual_rate,
			promotion_date = excluded.promotion_date,
			previous_rate = excluded.previous_rate,
			left_date = excluded.left_date,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	status := emp.Status
	if status == "" {
		status = ledger.StatusActive
	}
	now := formatTime(time.Now())
	_, err := q.ExecContext(ctx, query,
		string(emp.Ref), emp.Name,
		nullDate(emp.HireDate),
		emp.AccrualRate.String(),
		nullDate(emp.PromotionDate),
		nullDecimal(emp.PreviousRate),
		nullDate(emp.LeftDate),
		string(status),
		now, now,
	)
	if err != nil {
		return ledger.Persistence("save employee", err)
	}
	return nil
}

const employeeColumns = `ref, name, hire_date, accrual_rate, promotion_date, previous_rate, left_date, status, created_at, updated_at`

// GetEmployee retrieves an employee by ref.
func (s *Store) GetEmployee(ctx context.Context, ref ledger.EmployeeRef) (ledger.Employee, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE ref = ?", string(ref))
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Employee{}, fmt.Errorf("employee %s: %w", ref, ledger.ErrNotFound)
	}
	return emp, err
}

// ListEmployees returns all employees ordered by ref.
func (s *Store) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY ref")
	if err != nil {
		return nil, ledger.Persistence("list employees", err)
	}
	defer rows.Close()

	var employees []ledger.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Persistence("list employees", err)
	}
	return employees, nil
}

func scanEmployee(row scanner) (ledger.Employee, error) {
	var (
		emp                          ledger.Employee
		ref, rate, status            string
		hireDate, promoDate, leftDay sql.NullString
		previousRate                 sql.NullString
		createdAt, updatedAt         string
	)
	err := row.Scan(&ref, &emp.Name, &hireDate, &rate, &promoDate, &previousRate, &leftDay, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	if emp.HireDate, err = parseNullDate(hireDate); err != nil {
		return emp, ledger.Persistence("parse hire date", err)
	}
	if emp.PromotionDate, err = parseNullDate(promoDate); err != nil {
		return emp, ledger.Persistence("parse promotion date", err)
	}
	if emp.LeftDate, err = parseNullDate(leftDay); err != nil {
		return emp, ledger.Persistence("parse left date", err)
	}
	if emp.PreviousRate, err = parseNullDecimal(previousRate); err != nil {
		return emp, ledger.Persistence("parse previous rate", err)
	}
	if emp.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return emp, ledger.Persistence("parse created_at", err)
	}
	if emp.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return emp, ledger.Persistence("parse updated_at", err)
	}
	return emp, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *ledger.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func parseNullDate(s sql.NullString) (*ledger.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
