package leave

import (
	"context"
	"fmt"

	"github.com/warp/leave-ledger/ledger"
)

// History returns the employee's rows newest first. It does not catch up
// accruals.
func (e *Engine) History(ctx context.Context, ref ledger.EmployeeRef, filter ledger.HistoryFilter) ([]ledger.Transaction, error) {
	if ref == "" {
		return nil, ledger.ErrInvalidEmployee
	}
	for _, k := range filter.Kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ledger.ErrInvalidFilter, k)
		}
	}
	txs, err := e.store.History(ctx, ref, filter)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", ref, err)
	}
	return txs, nil
}

func (e *Engine) Leave(ctx context.Context, id ledger.LeaveID) (ledger.LeaveRecord, error) {
	return e.store.Leave(ctx, id)
}

// Leaves returns the employee's leave records, most recent first.
func (e *Engine) Leaves(ctx context.Context, ref ledger.EmployeeRef) ([]ledger.LeaveRecord, error) {
	if ref == "" {
		return nil, ledger.ErrInvalidEmployee
	}
	return e.store.Leaves(ctx, ref)
}
