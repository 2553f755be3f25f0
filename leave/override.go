package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
)

// ApplyManualOverride sets the employee's balance to newBalance by appending
// the difference as a manual_override row. Accruals are caught up first so
// the difference is taken against the same balance GetBalance reports. It
// reports whether a row was written; a difference below ledger.Epsilon
// writes nothing.
func (e *Engine) ApplyManualOverride(ctx context.Context, emp ledger.Employee, newBalance decimal.Decimal, operator string) (bool, error) {
	if emp.Ref == "" {
		return false, ledger.ErrInvalidEmployee
	}
	target := ledger.Round(newBalance)
	periods := AccrualPeriods(emp, e.Today())

	var (
		written  bool
		previous decimal.Decimal
		delta    decimal.Decimal
	)
	err := e.store.WithEmployeeTx(ctx, emp.Ref, func(w ledger.Writer) error {
		if len(periods) > 0 {
			if _, err := e.catchUp(ctx, w, emp, periods); err != nil {
				return err
			}
		}
		sum, err := w.Balance(ctx, emp.Ref)
		if err != nil {
			return err
		}
		previous = ledger.Round(sum)
		delta = ledger.Round(target.Sub(previous))
		if ledger.Negligible(delta) {
			return nil
		}

		written = true
		return w.Append(ctx, &ledger.Transaction{
			EmployeeRef: emp.Ref,
			Kind:        ledger.KindManualOverride,
			Amount:      delta,
			Note: fmt.Sprintf("Manual override by %s: previous=%s, new=%s",
				operatorOrSystem(operator), previous.StringFixed(2), target.StringFixed(2)),
			CreatedBy: operator,
			CreatedAt: e.now(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("manual override for %s: %w", emp.Ref, err)
	}

	if written {
		e.log.Info("manual override applied",
			refField(emp.Ref),
			zap.String("previous", previous.String()),
			zap.String("new", target.String()),
			zap.String("delta", delta.String()),
			zap.String("operator", operator))
	}
	return written, nil
}

// RecordAdjustment appends a signed correction.
func (e *Engine) RecordAdjustment(ctx context.Context, emp ledger.Employee, amount decimal.Decimal, note, operator string) (ledger.Transaction, error) {
	return e.appendCorrection(ctx, emp, ledger.KindAdjustment, amount, note, operator)
}

// ImportBalance appends an opening balance carried over from another system.
func (e *Engine) ImportBalance(ctx context.Context, emp ledger.Employee, amount decimal.Decimal, note, operator string) (ledger.Transaction, error) {
	if note == "" {
		note = "Imported opening balance"
	}
	return e.appendCorrection(ctx, emp, ledger.KindImport, amount, note, operator)
}

func (e *Engine) appendCorrection(ctx context.Context, emp ledger.Employee, kind ledger.Kind, amount decimal.Decimal, note, operator string) (ledger.Transaction, error) {
	if emp.Ref == "" {
		return ledger.Transaction{}, ledger.ErrInvalidEmployee
	}
	tx := ledger.Transaction{
		EmployeeRef: emp.Ref,
		Kind:        kind,
		Amount:      ledger.Round(amount),
		Note:        note,
		CreatedBy:   operator,
		CreatedAt:   e.now(),
	}
	err := e.store.WithEmployeeTx(ctx, emp.Ref, func(w ledger.Writer) error {
		return w.Append(ctx, &tx)
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%s for %s: %w", kind, emp.Ref, err)
	}

	e.log.Info("correction recorded",
		refField(emp.Ref),
		zap.String("kind", string(kind)),
		zap.String("amount", tx.Amount.String()))
	return tx, nil
}
