/*
errors.go - Error vocabulary shared by the engine, stores and API

PURPOSE:
  All error types in one place. Stores translate driver errors into these,
  the engine wraps them with context, and the API maps them onto HTTP
  status codes.

ERROR CATEGORIES:
  1. Validation errors - rejected input, nothing written
  2. Conflict errors - storage invariant refused a write
  3. Store errors - persistence unavailable or failed

USAGE:

    if errors.Is(err, ledger.ErrDuplicateAccrualPeriod) {
        var dup *ledger.DuplicateAccrualError
        errors.As(err, &dup) // dup.Period names the month
    }

SEE ALSO:
  - store.go: contract whose implementations return these errors
  - api/errors.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmployeeInactive is returned when recording leave for an employee
	// whose status is Left.
	ErrEmployeeInactive = errors.New("employee is not active")

	// ErrInvalidDateRange is returned when a leave ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrInvalidLeave is returned for malformed leave input (negative days,
	// missing dates).
	ErrInvalidLeave = errors.New("invalid leave")

	// ErrInvalidEmployee is returned for an employee without a reference.
	ErrInvalidEmployee = errors.New("invalid employee")

	// ErrInvalidFilter is returned for a history query naming an unknown kind.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrDuplicateAccrualPeriod is returned when a second accrual row for the
	// same (employee, period) is written. It indicates a logic defect or a
	// lost race and must never be silently ignored.
	ErrDuplicateAccrualPeriod = errors.New("duplicate accrual period")

	// ErrNotFound is returned when a leave record or employee does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when the store cannot complete an operation.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateAccrualError names the accrual that collided.
type DuplicateAccrualError struct {
	EmployeeRef EmployeeRef
	Period      Period
}

func (e *DuplicateAccrualError) Error() string {
	return fmt.Sprintf("accrual already recorded for %s in %s", e.EmployeeRef, e.Period)
}

func (e *DuplicateAccrualError) Unwrap() error {
	return ErrDuplicateAccrualPeriod
}

// PersistenceError wraps a driver failure. It matches both ErrPersistence and
// the underlying cause.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Persistence wraps err as a PersistenceError for op. Errors that already
// carry ledger meaning are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateAccrualPeriod) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidLeave) ||
		errors.Is(err, ErrInvalidEmployee) ||
		errors.Is(err, ErrInvalidFilter)
}

// IsConflict returns true if the request conflicts with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrEmployeeInactive) ||
		errors.Is(err, ErrDuplicateAccrualPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
