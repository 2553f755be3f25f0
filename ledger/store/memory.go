// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps. WithEmployeeTx holds the write lock for the
// whole transaction, so employees are serialized globally rather than
// per-employee.
type Memory struct {
	mu   sync.RWMutex
	data state
}

type state struct {
	nextTxID     ledger.TransactionID
	nextLeaveID  ledger.LeaveID
	transactions map[ledger.EmployeeRef][]ledger.Transaction
	leaves       map[ledger.LeaveID]ledger.LeaveRecord
	employees    map[ledger.EmployeeRef]ledger.Employee
}

func NewMemory() *Memory {
	return &Memory{data: state{
		transactions: make(map[ledger.EmployeeRef][]ledger.Transaction),
		leaves:       make(map[ledger.LeaveID]ledger.LeaveRecord),
		employees:    make(map[ledger.EmployeeRef]ledger.Employee),
	}}
}

var (
	_ ledger.Store     = (*Memory)(nil)
	_ ledger.Directory = (*Memory)(nil)
)

// WithEmployeeTx runs fn against the live state and restores a snapshot if fn
// fails.
func (m *Memory) WithEmployeeTx(ctx context.Context, ref ledger.EmployeeRef, fn func(ledger.Writer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ledger.Persistence("begin", err)
	}

	snapshot := m.data.clone()
	if err := fn(&m.data); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// clone copies everything a transaction can write.
func (s *state) clone() state {
	c := state{
		nextTxID:     s.nextTxID,
		nextLeaveID:  s.nextLeaveID,
		transactions: make(map[ledger.EmployeeRef][]ledger.Transaction, len(s.transactions)),
		leaves:       make(map[ledger.LeaveID]ledger.LeaveRecord, len(s.leaves)),
		employees:    make(map[ledger.EmployeeRef]ledger.Employee, len(s.employees)),
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]ledger.Transaction(nil), v...)
	}
	for k, v := range s.leaves {
		c.leaves[k] = v
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	return c
}

// Reader methods on Memory take the read lock and delegate to state.

func (m *Memory) Transactions(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Transactions(ctx, ref)
}

func (m *Memory) History(ctx context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.History(ctx, ref, filter)
}

func (m *Memory) Balance(ctx context.Context, ref ledger.EmployeeRef) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Balance(ctx, ref)
}

func (m *Memory) AccrualPeriods(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.AccrualPeriods(ctx, ref)
}

func (m *Memory) Leave(ctx context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Leave(ctx, id)
}

func (m *Memory) Leaves(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Leaves(ctx, ref)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveEmployee(ctx, emp)
}

func (m *Memory) GetEmployee(_ context.Context, ref ledger.EmployeeRef) (ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.data.employees[ref]
	if !ok {
		return ledger.Employee{}, ledger.ErrNotFound
	}
	return emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Employee, 0, len(m.data.employees))
	for _, emp := range m.data.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

// =============================================================================
// STATE - ledger.Writer over the maps, caller holds the lock
// =============================================================================

func (s *state) SaveEmployee(_ context.Context, emp ledger.Employee) error {
	now := time.Now().UTC()
	if existing, ok := s.employees[emp.Ref]; ok {
		emp.CreatedAt = existing.CreatedAt
	} else {
		emp.CreatedAt = now
	}
	emp.UpdatedAt = now
	s.employees[emp.Ref] = emp
	return nil
}

func (s *state) Transactions(_ context.Context, ref ledger.EmployeeRef) ([]ledger.Transaction, error) {
	return append([]ledger.Transaction(nil), s.transactions[ref]...), nil
}

func (s *state) History(_ context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tx := range s.transactions[ref] {
		if filter.Match(tx) {
			out = append(out, tx)
		}
	}
	// Same order as the SQL stores: created_at DESC, id DESC.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *state) Balance(_ context.Context, ref ledger.EmployeeRef) (decimal.Decimal, error) {
	return ledger.Sum(s.transactions[ref]), nil
}

func (s *state) AccrualPeriods(_ context.Context, ref ledger.EmployeeRef) ([]ledger.Period, error) {
	var out []ledger.Period
	for _, tx := range s.transactions[ref] {
		if tx.IsAccrual() && tx.Period != nil {
			out = append(out, *tx.Period)
		}
	}
	return out, nil
}

func (s *state) Leave(_ context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	rec, ok := s.leaves[id]
	if !ok {
		return ledger.LeaveRecord{}, ledger.ErrNotFound
	}
	return rec, nil
}

func (s *state) Leaves(_ context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	var out []ledger.LeaveRecord
	for _, rec := range s.leaves {
		if rec.EmployeeRef == ref {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateFrom.Equal(out[j].DateFrom) {
			return out[i].DateFrom.After(out[j].DateFrom)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *state) Append(_ context.Context, tx *ledger.Transaction) error {
	if tx.IsAccrual() && tx.Period != nil {
		for _, existing := range s.transactions[tx.EmployeeRef] {
			if existing.IsAccrual() && existing.Period != nil && *existing.Period == *tx.Period {
				return &ledger.DuplicateAccrualError{EmployeeRef: tx.EmployeeRef, Period: *tx.Period}
			}
		}
	}
	s.nextTxID++
	tx.ID = s.nextTxID
	s.transactions[tx.EmployeeRef] = append(s.transactions[tx.EmployeeRef], *tx)
	return nil
}

func (s *state) DeleteAccruals(_ context.Context, ref ledger.EmployeeRef) (int, error) {
	return s.deleteWhere(ref, func(tx ledger.Transaction) bool { return tx.IsAccrual() }), nil
}

func (s *state) DeleteByReference(_ context.Context, ref ledger.EmployeeRef, id ledger.LeaveID) (int, error) {
	return s.deleteWhere(ref, func(tx ledger.Transaction) bool {
		return tx.ReferenceID != nil && *tx.ReferenceID == id
	}), nil
}

func (s *state) deleteWhere(ref ledger.EmployeeRef, drop func(ledger.Transaction) bool) int {
	txs := s.transactions[ref]
	kept := txs[:0:0]
	for _, tx := range txs {
		if !drop(tx) {
			kept = append(kept, tx)
		}
	}
	s.transactions[ref] = kept
	return len(txs) - len(kept)
}

func (s *state) LeaveTransaction(_ context.Context, id ledger.LeaveID) (ledger.Transaction, error) {
	rec, ok := s.leaves[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	for _, tx := range s.transactions[rec.EmployeeRef] {
		if tx.Kind == ledger.KindLeaveTaken && tx.ReferenceID != nil && *tx.ReferenceID == id {
			return tx, nil
		}
	}
	return ledger.Transaction{}, ledger.ErrNotFound
}

func (s *state) CorrectTransaction(_ context.Context, id ledger.TransactionID, amount decimal.Decimal, note string) error {
	for ref, txs := range s.transactions {
		for i := range txs {
			if txs[i].ID == id {
				s.transactions[ref][i].Amount = amount
				s.transactions[ref][i].Note = note
				return nil
			}
		}
	}
	return ledger.ErrNotFound
}

func (s *state) InsertLeave(_ context.Context, rec *ledger.LeaveRecord) error {
	s.nextLeaveID++
	rec.ID = s.nextLeaveID
	s.leaves[rec.ID] = *rec
	return nil
}

func (s *state) UpdateLeave(_ context.Context, rec ledger.LeaveRecord) error {
	if _, ok := s.leaves[rec.ID]; !ok {
		return ledger.ErrNotFound
	}
	s.leaves[rec.ID] = rec
	return nil
}

func (s *state) DeleteLeave(_ context.Context, id ledger.LeaveID) error {
	if _, ok := s.leaves[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.leaves, id)
	return nil
}
