/*
recorder.go - Leave records and their ledger rows

LINKAGE:
  While a leave record exists, exactly one leave_taken row references it:
    paid   -> amount = -days
    unpaid -> amount = 0 (kept for the audit trail)

  RecordLeave  inserts the record and its row together.
  EditLeave    updates the record and rewrites the row's amount and note.
               The row keeps its id and created_at.
  DeleteLeave  removes the record and every row referencing it, then
               appends a zero-amount adjustment naming who deleted it.
*/
package leave

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
)

// LeaveInput is an approved absence as handed over by leave intake.
type LeaveInput struct {
	DateFrom  ledger.Date
	DateTo    ledger.Date
	Days      decimal.Decimal
	Paid      bool
	LeaveType string
	Approver  string
	Recorder  string
	Reason    string
}

// Validate checks the input without touching storage.
func (in LeaveInput) Validate() error {
	if in.DateFrom.IsZero() || in.DateTo.IsZero() {
		return fmt.Errorf("%w: dates are required", ledger.ErrInvalidLeave)
	}
	if in.DateTo.Before(in.DateFrom) {
		return fmt.Errorf("%w: %s is before %s", ledger.ErrInvalidDateRange, in.DateTo, in.DateFrom)
	}
	if in.Days.IsNegative() {
		return fmt.Errorf("%w: days must not be negative, got %s", ledger.ErrInvalidLeave, in.Days)
	}
	return nil
}

// Amount is the ledger amount for the leave.
func (in LeaveInput) Amount() decimal.Decimal {
	if !in.Paid {
		return decimal.Zero
	}
	return ledger.Round(in.Days).Neg()
}

func (in LeaveInput) describe() string {
	s := fmt.Sprintf("%s to %s", in.DateFrom, in.DateTo)
	if in.LeaveType != "" {
		s += " (" + in.LeaveType + ")"
	}
	if in.Approver != "" {
		s += ", approver: " + in.Approver
	}
	return s
}

func (in LeaveInput) apply(rec *ledger.LeaveRecord) {
	rec.DateFrom = in.DateFrom
	rec.DateTo = in.DateTo
	rec.Days = in.Days
	rec.Paid = in.Paid
	rec.LeaveType = in.LeaveType
	rec.Approver = in.Approver
	rec.Recorder = in.Recorder
	rec.Reason = in.Reason
}

// =============================================================================
// RECORD
// =============================================================================

// RecordLeave stores the leave and its leave_taken row and returns the new
// leave id.
func (e *Engine) RecordLeave(ctx context.Context, emp ledger.Employee, in LeaveInput, operator string) (ledger.LeaveID, error) {
	if emp.Ref == "" {
		return 0, ledger.ErrInvalidEmployee
	}
	if !emp.Active() {
		return 0, fmt.Errorf("record leave for %s: %w", emp.Ref, ledger.ErrEmployeeInactive)
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}

	now := e.now()
	rec := ledger.LeaveRecord{
		EmployeeRef: emp.Ref,
		CreatedBy:   operator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	in.apply(&rec)

	err := e.store.WithEmployeeTx(ctx, emp.Ref, func(w ledger.Writer) error {
		if err := w.InsertLeave(ctx, &rec); err != nil {
			return err
		}
		id := rec.ID
		return w.Append(ctx, &ledger.Transaction{
			EmployeeRef: emp.Ref,
			Kind:        ledger.KindLeaveTaken,
			Amount:      in.Amount(),
			ReferenceID: &id,
			Note:        "Leave " + in.describe(),
			CreatedBy:   operator,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("record leave for %s: %w", emp.Ref, err)
	}

	e.log.Info("leave recorded",
		refField(emp.Ref),
		zap.Int64("leave_id", int64(rec.ID)),
		zap.String("days", in.Days.String()),
		zap.Bool("paid", in.Paid))
	return rec.ID, nil
}

// =============================================================================
// EDIT
// =============================================================================

// EditLeave replaces the leave's details and corrects its linked row. If the
// linked row is missing, a new one is appended so the leave stays linked.
func (e *Engine) EditLeave(ctx context.Context, id ledger.LeaveID, in LeaveInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	current, err := e.store.Leave(ctx, id)
	if err != nil {
		return fmt.Errorf("edit leave %d: %w", id, err)
	}
	ref := current.EmployeeRef

	err = e.store.WithEmployeeTx(ctx, ref, func(w ledger.Writer) error {
		rec, err := w.Leave(ctx, id)
		if err != nil {
			return err
		}
		in.apply(&rec)
		rec.UpdatedAt = e.now()
		if err := w.UpdateLeave(ctx, rec); err != nil {
			return err
		}

		note := "Edited leave " + in.describe()
		linked, err := w.LeaveTransaction(ctx, id)
		switch {
		case err == nil:
			return w.CorrectTransaction(ctx, linked.ID, in.Amount(), note)
		case errors.Is(err, ledger.ErrNotFound):
			e.log.Warn("leave had no linked transaction, relinking",
				refField(ref), zap.Int64("leave_id", int64(id)))
			leaveID := id
			return w.Append(ctx, &ledger.Transaction{
				EmployeeRef: ref,
				Kind:        ledger.KindLeaveTaken,
				Amount:      in.Amount(),
				ReferenceID: &leaveID,
				Note:        note,
				CreatedBy:   rec.CreatedBy,
				CreatedAt:   e.now(),
			})
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("edit leave %d: %w", id, err)
	}

	e.log.Info("leave edited", refField(ref), zap.Int64("leave_id", int64(id)))
	return nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteLeave removes the leave and its rows and records who deleted it.
func (e *Engine) DeleteLeave(ctx context.Context, id ledger.LeaveID, operator string) error {
	current, err := e.store.Leave(ctx, id)
	if err != nil {
		return fmt.Errorf("delete leave %d: %w", id, err)
	}
	ref := current.EmployeeRef

	var removed int
	err = e.store.WithEmployeeTx(ctx, ref, func(w ledger.Writer) error {
		if _, err := w.Leave(ctx, id); err != nil {
			return err
		}
		var err error
		if removed, err = w.DeleteByReference(ctx, ref, id); err != nil {
			return err
		}
		if err := w.DeleteLeave(ctx, id); err != nil {
			return err
		}
		return w.Append(ctx, &ledger.Transaction{
			EmployeeRef: ref,
			Kind:        ledger.KindAdjustment,
			Amount:      decimal.Zero,
			Note:        fmt.Sprintf("Deleted leave id %d by %s", id, operatorOrSystem(operator)),
			CreatedBy:   operator,
			CreatedAt:   e.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("delete leave %d: %w", id, err)
	}

	e.log.Info("leave deleted",
		refField(ref),
		zap.Int64("leave_id", int64(id)),
		zap.Int("rows_removed", removed))
	return nil
}

func operatorOrSystem(operator string) string {
	if operator == "" {
		return "system"
	}
	return operator
}
