/*
promotion.go - Retroactive accrual rate change

PURPOSE:
  A promotion changes the monthly accrual rate, possibly effective in the
  past. All accrual rows are deleted and regenerated so each month carries
  the rate that applied to it.

SWITCHOVER:
  The new rate applies from the switchover month:
    promotion on the 1st   -> that month
    promotion after the 1st -> the following month

  Promoted 2024-03-01: 2024-03 at the new rate
  Promoted 2024-03-15: 2024-03 at the old rate, 2024-04 at the new rate

RECONCILIATION:
  After regeneration, the stored accrual total is compared with the
  expected total. A difference of at least ledger.Epsilon is booked as a
  promotion_adjust row. With a correct store the difference is zero and no
  row is written.

AUDIT:
  A zero-amount promotion row records the rate change.

FORWARD-DATED PROMOTIONS:
  PromoteEmployee also stores the new rate, the promotion date and the
  replaced rate on the employee in the same transaction. Months that are
  accrued later by catch-up take their rate from Employee.RateFor, so the
  months between today and the switchover still accrue at the old rate.

Non-accrual rows (leave, overrides, adjustments) are never touched.
*/
package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
)

// SwitchoverPeriod returns the first period accrued at the new rate.
func SwitchoverPeriod(promotionDate ledger.Date) ledger.Period {
	return ledger.SwitchoverPeriod(promotionDate)
}

// Promotion describes a rate change to apply retroactively.
type Promotion struct {
	OldRate decimal.Decimal
	NewRate decimal.Decimal
	Date    ledger.Date
	AsOf    ledger.Date
}

// RecalculateForPromotion regenerates every accrual of emp with oldRate before
// the switchover month and newRate from it, through the same last month
// CatchUpAccruals would use for asOf.
func (e *Engine) RecalculateForPromotion(ctx context.Context, emp ledger.Employee, oldRate, newRate decimal.Decimal, promotionDate, asOf ledger.Date, operator string) error {
	return e.Promote(ctx, emp, Promotion{OldRate: oldRate, NewRate: newRate, Date: promotionDate, AsOf: asOf}, operator)
}

// Promote is RecalculateForPromotion with its arguments grouped.
func (e *Engine) Promote(ctx context.Context, emp ledger.Employee, promo Promotion, operator string) error {
	if emp.Ref == "" {
		return ledger.ErrInvalidEmployee
	}
	var res recalculation
	err := e.store.WithEmployeeTx(ctx, emp.Ref, func(w ledger.Writer) error {
		var err error
		res, err = e.recalculate(ctx, w, emp, promo, operator)
		return err
	})
	if err != nil {
		return fmt.Errorf("recalculate accruals for %s: %w", emp.Ref, err)
	}
	e.logRecalculation(emp.Ref, res)
	return nil
}

// PromoteEmployee changes emp's rate to newRate effective promotionDate. The
// accrual recalculation and the updated employee record are written in one
// transaction, so a failure leaves both untouched and the call can be retried.
//
// The employee keeps the rate it replaced, so months before the switchover
// that are only accrued later (a promotion dated in the future) still get the
// old rate from CatchUpAccruals.
func (e *Engine) PromoteEmployee(ctx context.Context, emp ledger.Employee, newRate decimal.Decimal, promotionDate, asOf ledger.Date, operator string) (ledger.Employee, error) {
	if emp.Ref == "" {
		return emp, ledger.ErrInvalidEmployee
	}

	// The rate being replaced is the one in effect the month before the new
	// switchover, which may itself be an earlier promotion's previous rate.
	oldRate := emp.RateFor(SwitchoverPeriod(promotionDate).Prev())
	promo := Promotion{OldRate: oldRate, NewRate: newRate, Date: promotionDate, AsOf: asOf}

	promoted := emp
	promoted.AccrualRate = newRate
	promoted.PromotionDate = &promotionDate
	promoted.PreviousRate = &oldRate

	var res recalculation
	err := e.store.WithEmployeeTx(ctx, emp.Ref, func(w ledger.Writer) error {
		var err error
		if res, err = e.recalculate(ctx, w, emp, promo, operator); err != nil {
			return err
		}
		return w.SaveEmployee(ctx, promoted)
	})
	if err != nil {
		return emp, fmt.Errorf("promote %s: %w", emp.Ref, err)
	}
	e.logRecalculation(emp.Ref, res)
	return promoted, nil
}

type recalculation struct {
	oldRate, newRate decimal.Decimal
	switchover       ledger.Period
	removed          int
	written          int
	adjustment       decimal.Decimal
}

// recalculate runs inside the employee transaction.
func (e *Engine) recalculate(ctx context.Context, w ledger.Writer, emp ledger.Employee, promo Promotion, operator string) (recalculation, error) {
	res := recalculation{
		oldRate:    ledger.Round(promo.OldRate),
		newRate:    ledger.Round(promo.NewRate),
		switchover: SwitchoverPeriod(promo.Date),
	}
	periods := AccrualPeriods(emp, promo.AsOf)

	var err error
	if res.removed, err = w.DeleteAccruals(ctx, emp.Ref); err != nil {
		return res, err
	}

	expected := decimal.Zero
	for _, p := range periods {
		rate := res.oldRate
		if !p.Before(res.switchover) {
			rate = res.newRate
		}
		period := p
		tx := &ledger.Transaction{
			EmployeeRef: emp.Ref,
			Kind:        ledger.KindAccrual,
			Period:      &period,
			Amount:      rate,
			Note:        fmt.Sprintf("Promotion recalculation for %s @ %s", period, rate.StringFixed(2)),
			CreatedBy:   operator,
			CreatedAt:   e.now(),
		}
		if err := w.Append(ctx, tx); err != nil {
			return res, err
		}
		expected = expected.Add(rate)
	}
	res.written = len(periods)

	if res.adjustment, err = e.reconcileAccruals(ctx, w, emp.Ref, expected, operator); err != nil {
		return res, err
	}

	return res, w.Append(ctx, &ledger.Transaction{
		EmployeeRef: emp.Ref,
		Kind:        ledger.KindPromotion,
		Amount:      decimal.Zero,
		Note: fmt.Sprintf("Promotion effective %s: rate %s -> %s from %s",
			promo.Date, res.oldRate.StringFixed(2), res.newRate.StringFixed(2), res.switchover),
		CreatedBy: operator,
		CreatedAt: e.now(),
	})
}

func (e *Engine) logRecalculation(ref ledger.EmployeeRef, res recalculation) {
	e.log.Info("accruals recalculated for promotion",
		refField(ref),
		zap.String("old_rate", res.oldRate.String()),
		zap.String("new_rate", res.newRate.String()),
		zap.String("switchover", res.switchover.String()),
		zap.Int("removed", res.removed),
		zap.Int("written", res.written),
		zap.String("adjustment", res.adjustment.String()))
}

// reconcileAccruals books the gap between expected and stored accrual totals.
func (e *Engine) reconcileAccruals(ctx context.Context, w ledger.Writer, ref ledger.EmployeeRef, expected decimal.Decimal, operator string) (decimal.Decimal, error) {
	txs, err := w.Transactions(ctx, ref)
	if err != nil {
		return decimal.Zero, err
	}
	diff := ledger.Round(expected.Sub(ledger.SumKind(txs, ledger.KindAccrual)))
	if ledger.Negligible(diff) {
		return decimal.Zero, nil
	}

	e.log.Warn("accrual total differs after recalculation",
		refField(ref),
		zap.String("expected", expected.String()),
		zap.String("difference", diff.String()))

	return diff, w.Append(ctx, &ledger.Transaction{
		EmployeeRef: ref,
		Kind:        ledger.KindPromotionAdjust,
		Amount:      diff,
		Note:        fmt.Sprintf("Promotion reconciliation adjustment %s", diff.StringFixed(2)),
		CreatedBy:   operator,
		CreatedAt:   e.now(),
	})
}
