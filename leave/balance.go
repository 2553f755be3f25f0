package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
)

// GetBalance catches up accruals to today and returns the employee's balance
// rounded to two places.
//
// A failed catch-up is logged and the sum of the rows already stored is
// returned. Only a failure to read the rows is an error.
func (e *Engine) GetBalance(ctx context.Context, emp ledger.Employee) (decimal.Decimal, error) {
	if emp.Ref == "" {
		return decimal.Zero, ledger.ErrInvalidEmployee
	}

	if _, err := e.CatchUpAccruals(ctx, emp, e.Today()); err != nil {
		e.log.Warn("accrual catch-up failed, balance may be stale",
			refField(emp.Ref), zap.Error(err))
	}

	sum, err := e.store.Balance(ctx, emp.Ref)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance for %s: %w", emp.Ref, err)
	}
	return ledger.Round(sum), nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary breaks a balance down by where the days came from.
type Summary struct {
	EmployeeRef ledger.EmployeeRef
	Balance     decimal.Decimal
	Accrued     decimal.Decimal // accrual + promotion_adjust
	Taken       decimal.Decimal // leave_taken, negative
	Corrections decimal.Decimal // overrides, adjustments, imports
	AsOf        ledger.Date
	Rows        int
}

// Summary returns the balance with per-kind totals. The parts always add up
// to Balance.
func (e *Engine) Summary(ctx context.Context, emp ledger.Employee) (Summary, error) {
	balance, err := e.GetBalance(ctx, emp)
	if err != nil {
		return Summary{}, err
	}
	txs, err := e.store.Transactions(ctx, emp.Ref)
	if err != nil {
		return Summary{}, fmt.Errorf("transactions for %s: %w", emp.Ref, err)
	}

	accrued := ledger.SumKind(txs, ledger.KindAccrual, ledger.KindPromotionAdjust)
	taken := ledger.SumKind(txs, ledger.KindLeaveTaken)
	return Summary{
		EmployeeRef: emp.Ref,
		Balance:     balance,
		Accrued:     ledger.Round(accrued),
		Taken:       ledger.Round(taken),
		Corrections: balance.Sub(ledger.Round(accrued)).Sub(ledger.Round(taken)),
		AsOf:        e.Today(),
		Rows:        len(txs),
	}, nil
}
