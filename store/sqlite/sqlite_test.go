package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(day string) time.Time {
	d, err := ledger.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return d.Time()
}

func appendRows(t *testing.T, s *Store, rows ...*ledger.Transaction) {
	t.Helper()
	err := s.WithEmployeeTx(context.Background(), rows[0].EmployeeRef, func(w ledger.Writer) error {
		for _, tx := range rows {
			if err := w.Append(context.Background(), tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func accrualRow(ref ledger.EmployeeRef, period, amount string) *ledger.Transaction {
	p, err := ledger.ParsePeriod(period)
	if err != nil {
		panic(err)
	}
	return &ledger.Transaction{
		EmployeeRef: ref,
		Kind:        ledger.KindAccrual,
		Period:      &p,
		Amount:      decimal.RequireFromString(amount),
		Note:        "Auto-accrual for " + period,
		CreatedAt:   p.Next().Start().Time(),
	}
}

func TestNew_MigrationIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Ping(context.Background()))
	appendRows(t, first, accrualRow("E1", "2024-01", "1.5"))
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	txs, err := second.Transactions(context.Background(), "E1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestAppend_RoundTripsEveryField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	leaveID := ledger.LeaveID(7)
	created := time.Date(2024, time.April, 10, 9, 30, 15, 123, time.UTC)
	tx := &ledger.Transaction{
		EmployeeRef: "E1",
		Kind:        ledger.KindLeaveTaken,
		Amount:      decimal.RequireFromString("-2.5"),
		ReferenceID: &leaveID,
		Note:        "Leave 2024-04-15 to 2024-04-16",
		CreatedBy:   "hr",
		CreatedAt:   created,
	}
	appendRows(t, s, tx)
	assert.NotZero(t, tx.ID)

	txs, err := s.Transactions(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	got := txs[0]
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, ledger.KindLeaveTaken, got.Kind)
	assert.Nil(t, got.Period)
	assert.True(t, got.Amount.Equal(tx.Amount))
	require.NotNil(t, got.ReferenceID)
	assert.Equal(t, leaveID, *got.ReferenceID)
	assert.Equal(t, "hr", got.CreatedBy)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestAppend_DuplicateAccrualPeriod(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendRows(t, s, accrualRow("E1", "2024-03", "1.5"))

	// WHEN: Inserting the same period in a new transaction
	err := s.WithEmployeeTx(ctx, "E1", func(w ledger.Writer) error {
		return w.Append(ctx, accrualRow("E1", "2024-03", "1.5"))
	})

	// THEN: The unique index reports a typed duplicate
	var dup *ledger.DuplicateAccrualError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "2024-03", dup.Period.String())

	// AND: Another employee may accrue the same period
	appendRows(t, s, accrualRow("E2", "2024-03", "1.5"))
}

func TestWithEmployeeTx_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithEmployeeTx(ctx, "E1", func(w ledger.Writer) error {
		if err := w.Append(ctx, accrualRow("E1", "2024-01", "1.5")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, err := s.Balance(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestBalance_IsExactDecimal(t *testing.T) {
	s := newTestStore(t)
	rows := make([]*ledger.Transaction, 0, 10)
	for i := 1; i <= 10; i++ {
		rows = append(rows, accrualRow("E1", ledger.NewPeriod(2023, time.Month(i)).String(), "0.1"))
	}
	appendRows(t, s, rows...)

	balance, err := s.Balance(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "1", balance.String())
}

func TestHistory_FiltersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendRows(t, s,
		accrualRow("E1", "2024-01", "1.5"),
		accrualRow("E1", "2024-02", "1.5"),
		accrualRow("E1", "2024-03", "1.5"),
		&ledger.Transaction{EmployeeRef: "E1", Kind: ledger.KindAdjustment, Amount: decimal.NewFromInt(1), CreatedAt: at("2024-03-15")},
	)

	all, err := s.History(ctx, "E1", ledger.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2024-03", all[0].Period.String(), "created 2024-04-01 is newest")
	assert.Equal(t, ledger.KindAdjustment, all[1].Kind)

	from, to := at("2024-02-01"), at("2024-04-01")
	window, err := s.History(ctx, "E1", ledger.HistoryFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 3, "from is inclusive and to is exclusive")
	assert.Equal(t, "2024-01", window[2].Period.String())

	kinds, err := s.History(ctx, "E1", ledger.HistoryFilter{Kinds: []ledger.Kind{ledger.KindAccrual}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, kinds, 1)
	assert.Equal(t, "2024-03", kinds[0].Period.String())
}

func TestLeaveRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)

	from, _ := ledger.ParseDate("2024-04-15")
	to, _ := ledger.ParseDate("2024-04-17")
	rec := &ledger.LeaveRecord{
		EmployeeRef: "E1",
		DateFrom:    from,
		DateTo:      to,
		Days:        decimal.NewFromInt(3),
		Paid:        true,
		LeaveType:   "annual",
		CreatedBy:   "hr",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.WithEmployeeTx(ctx, "E1", func(w ledger.Writer) error {
		if err := w.InsertLeave(ctx, rec); err != nil {
			return err
		}
		id := rec.ID
		return w.Append(ctx, &ledger.Transaction{
			EmployeeRef: "E1", Kind: ledger.KindLeaveTaken, Amount: decimal.NewFromInt(-3), ReferenceID: &id, CreatedAt: now,
		})
	}))

	got, err := s.Leave(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-15", got.DateFrom.String())
	assert.True(t, got.Days.Equal(decimal.NewFromInt(3)))
	assert.True(t, got.Paid)
	assert.Equal(t, "annual", got.LeaveType)

	require.NoError(t, s.WithEmployeeTx(ctx, "E1", func(w ledger.Writer) error {
		linked, err := w.LeaveTransaction(ctx, rec.ID)
		require.NoError(t, err)
		require.NoError(t, w.CorrectTransaction(ctx, linked.ID, decimal.NewFromInt(-4), "edited"))

		got.Days = decimal.NewFromInt(4)
		got.Reason = "extended"
		require.NoError(t, w.UpdateLeave(ctx, got))

		n, err := w.DeleteByReference(ctx, "E1", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return w.DeleteLeave(ctx, rec.ID)
	}))

	_, err = s.Leave(ctx, rec.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = s.WithEmployeeTx(ctx, "E1", func(w ledger.Writer) error {
		return w.DeleteLeave(ctx, rec.ID)
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEmployees_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hire, _ := ledger.ParseDate("2024-01-15")

	emp := ledger.Employee{Ref: "E1", Name: "Ann", HireDate: &hire, AccrualRate: decimal.RequireFromString("1.5")}
	require.NoError(t, s.SaveEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, got.Status, "status defaults to active")
	require.NotNil(t, got.HireDate)
	assert.Equal(t, "2024-01-15", got.HireDate.String())
	assert.Nil(t, got.LeftDate)

	left, _ := ledger.ParseDate("2024-06-30")
	emp.Status = ledger.StatusLeft
	emp.LeftDate = &left
	emp.AccrualRate = decimal.RequireFromString("2")
	require.NoError(t, s.SaveEmployee(ctx, emp))

	got, err = s.GetEmployee(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusLeft, got.Status)
	assert.Equal(t, "2024-06-30", got.LeftDate.String())
	assert.True(t, got.AccrualRate.Equal(decimal.NewFromInt(2)))

	list, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEmployees_PreviousRateRoundTripsInTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	promoted, _ := ledger.ParseDate("2024-06-15")
	previous := decimal.RequireFromString("1.5")

	require.NoError(t, s.WithEmployeeTx(ctx, "E1", func(w ledger.Writer) error {
		return w.SaveEmployee(ctx, ledger.Employee{
			Ref: "E1", AccrualRate: decimal.NewFromInt(2), PromotionDate: &promoted, PreviousRate: &previous,
		})
	}))

	got, err := s.GetEmployee(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, got.PreviousRate)
	assert.True(t, got.PreviousRate.Equal(previous))
	assert.Equal(t, "2024-06-15", got.PromotionDate.String())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestNew_AddsPreviousRateToOlderDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	// GIVEN: A database whose employees table predates previous_rate
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE employees (
		ref TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		hire_date TEXT,
		accrual_rate TEXT NOT NULL DEFAULT '0',
		promotion_date TEXT,
		left_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// WHEN: Opening it
	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	// THEN: The column exists and employees round-trip
	require.NoError(t, s.SaveEmployee(context.Background(), ledger.Employee{Ref: "E1", AccrualRate: decimal.NewFromInt(1)}))
	got, err := s.GetEmployee(context.Background(), "E1")
	require.NoError(t, err)
	assert.Nil(t, got.PreviousRate)
}

func TestScan_CorruptTimestampIsPersistenceError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendRows(t, s, accrualRow("E1", "2024-01", "1.5"))

	_, err := s.db.ExecContext(ctx, "UPDATE ledger_transactions SET created_at = 'yesterday'")
	require.NoError(t, err)

	_, err = s.Transactions(ctx, "E1")
	assert.ErrorIs(t, err, ledger.ErrPersistence)
	assert.ErrorContains(t, err, "parse created_at")
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, isUniqueConstraintError(nil))
	assert.False(t, isUniqueConstraintError(errors.New("disk I/O error")))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: ledger_transactions.employee_ref")))
}
