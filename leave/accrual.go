/*
accrual.go - Monthly accrual catch-up

PURPOSE:
  Ensures an employee has exactly one accrual row for every completed
  month between hire and today (or departure). Catch-up is lazy: it runs
  whenever a balance is read, and again from the scheduler.

SCHEDULE:
  first = month of hire
  last  = month before asOf, and never the departure month or later

  Hired 2024-01-15, asOf 2024-04-10  -> 2024-01, 2024-02, 2024-03
  Hired 2024-01-15, left 2024-03-20  -> 2024-01, 2024-02

  The hire month accrues in full; there is no proration.

AMOUNT:
  Each missing month is credited at the rate in effect for that month
  (Employee.RateFor) rounded to two places. Existing accruals are never rewritten here; promotion.go
  owns rewriting.

DUPLICATES:
  Catch-up checks existing periods before inserting, under the employee
  lock. If storage still reports a duplicate (another process won the
  race), the month is skipped and the duplicate is logged at error level.
*/
package leave

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
)

// AccrualPeriods returns every period the employee should have an accrual
// for as of asOf, oldest first. It is empty without a hire date.
func AccrualPeriods(emp ledger.Employee, asOf ledger.Date) []ledger.Period {
	if emp.HireDate == nil {
		return nil
	}
	first := emp.HireDate.Period()
	last := asOf.Period().Prev()
	if departure, ok := emp.Departure(asOf); ok {
		if boundary := departure.Period().Prev(); boundary.Before(last) {
			last = boundary
		}
	}
	return ledger.PeriodsBetween(first, last)
}

func accrualNote(p ledger.Period) string {
	return fmt.Sprintf("Auto-accrual for %s", p)
}

// CatchUpAccruals inserts the missing accrual rows for emp as of asOf and
// returns how many were created. Calling it twice with the same arguments
// creates nothing the second time.
func (e *Engine) CatchUpAccruals(ctx context.Context, emp ledger.Employee, asOf ledger.Date) (int, error) {
	if emp.Ref == "" {
		return 0, ledger.ErrInvalidEmployee
	}
	periods := AccrualPeriods(emp, asOf)
	if len(periods) == 0 {
		return 0, nil
	}

	var created int
	err := e.store.WithEmployeeTx(ctx, emp.Ref, func(w ledger.Writer) error {
		n, err := e.catchUp(ctx, w, emp, periods)
		created = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("catch up accruals for %s: %w", emp.Ref, err)
	}

	if created > 0 {
		e.log.Info("accruals caught up",
			refField(emp.Ref),
			zap.Int("created", created),
			zap.String("as_of", asOf.String()))
	}
	return created, nil
}

// catchUp runs inside the employee transaction.
func (e *Engine) catchUp(ctx context.Context, w ledger.Writer, emp ledger.Employee, periods []ledger.Period) (int, error) {
	existing, err := w.AccrualPeriods(ctx, emp.Ref)
	if err != nil {
		return 0, err
	}
	have := make(map[ledger.Period]bool, len(existing))
	for _, p := range existing {
		have[p] = true
	}

	created := 0
	for _, p := range periods {
		if have[p] {
			continue
		}
		period := p
		tx := &ledger.Transaction{
			EmployeeRef: emp.Ref,
			Kind:        ledger.KindAccrual,
			Period:      &period,
			Amount:      ledger.Round(emp.RateFor(period)),
			Note:        accrualNote(period),
			CreatedAt:   e.now(),
		}
		if err := w.Append(ctx, tx); err != nil {
			var dup *ledger.DuplicateAccrualError
			if errors.As(err, &dup) {
				e.log.Error("duplicate accrual period skipped",
					refField(emp.Ref),
					zap.String("period", period.String()),
					zap.String("error_kind", "duplicate_accrual_period"),
					zap.Error(err))
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// =============================================================================
// BATCH CATCH-UP
// =============================================================================

// BatchResult summarizes a CatchUpAll run.
type BatchResult struct {
	Processed int
	Created   int
	Failed    map[ledger.EmployeeRef]error
}

// CatchUpAll runs CatchUpAccruals for each employee. A failure for one
// employee does not stop the others.
func (e *Engine) CatchUpAll(ctx context.Context, employees []ledger.Employee, asOf ledger.Date) BatchResult {
	result := BatchResult{Failed: make(map[ledger.EmployeeRef]error)}
	for _, emp := range employees {
		if ctx.Err() != nil {
			result.Failed[emp.Ref] = ctx.Err()
			continue
		}
		n, err := e.CatchUpAccruals(ctx, emp, asOf)
		result.Processed++
		if err != nil {
			e.log.Warn("catch-up failed", refField(emp.Ref), zap.Error(err))
			result.Failed[emp.Ref] = err
			continue
		}
		result.Created += n
	}
	return result
}
