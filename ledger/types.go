/*
Package ledger provides the data model and persistence contracts of the
leave-balance ledger.

PURPOSE:
  An employee's leave balance is never stored. It is the sum of the
  transactions recorded for that employee: monthly accruals, leave taken,
  manual overrides, adjustments and imports. This package defines those
  transactions, the year-month Period that tags accruals, the Store
  contract that persists them, and the error vocabulary shared by every
  layer.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: what produced a transaction (accrual, leave_taken, ...)
  - Transaction: one ledger row, signed amount in days
  - EmployeeRef / TransactionID / LeaveID: type-safe identifiers

DESIGN PRINCIPLES:
  1. Append-oriented: rows are added, not edited. The only sanctioned
     in-place edit is correcting the amount and note of a leave row when
     its leave record is edited.
  2. Precision: amounts use decimal.Decimal, never float64.
  3. One accrual per (employee, period), enforced by storage.

SEE ALSO:
  - period.go: Period (year-month)
  - store.go: Store, Writer and Reader contracts
  - errors.go: sentinel and structured errors
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EmployeeRef is the opaque identifier of an employee owned by the
// surrounding application.
type EmployeeRef string

// TransactionID is assigned by the store and increases monotonically.
type TransactionID int64

// LeaveID identifies a leave record.
type LeaveID int64

// =============================================================================
// TRANSACTION
// =============================================================================

type Kind string

const (
	KindAccrual         Kind = "accrual"          // Monthly credit, one per period
	KindLeaveTaken      Kind = "leave_taken"      // Debit linked to a leave record
	KindManualOverride  Kind = "manual_override"  // Forces balance to an operator-chosen value
	KindPromotion       Kind = "promotion"        // Zero-amount audit row for a rate change
	KindPromotionAdjust Kind = "promotion_adjust" // Reconciliation after promotion recalculation
	KindAdjustment      Kind = "adjustment"       // Manual correction or deletion audit row
	KindOverride        Kind = "override"         // Legacy override rows
	KindImport          Kind = "import"           // Opening balance migrated from another system
)

var kinds = []Kind{
	KindAccrual, KindLeaveTaken, KindManualOverride, KindPromotion,
	KindPromotionAdjust, KindAdjustment, KindOverride, KindImport,
}

// Kinds returns every known transaction kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Transaction is one ledger row. Amount is signed: positive credits the
// employee, negative debits.
type Transaction struct {
	ID          TransactionID
	EmployeeRef EmployeeRef
	Kind        Kind
	Period      *Period // set only for KindAccrual
	Amount      decimal.Decimal
	ReferenceID *LeaveID // set only for KindLeaveTaken
	Note        string

	// Audit fields
	CreatedBy string // operator identity, empty for system rows
	CreatedAt time.Time
}

// IsAccrual reports whether the row is a monthly accrual.
func (t Transaction) IsAccrual() bool { return t.Kind == KindAccrual }

// =============================================================================
// AMOUNTS
// =============================================================================

// Epsilon is the smallest balance change worth recording.
var Epsilon = decimal.New(5, -3)

// Round rounds an amount to two decimal places, the precision balances are
// displayed and compared at.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Negligible reports whether d is within Epsilon of zero.
func Negligible(d decimal.Decimal) bool { return d.Abs().LessThan(Epsilon) }

// Sum adds the amounts of txs.
func Sum(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// SumKind adds the amounts of the rows of the given kinds.
func SumKind(txs []Transaction, ks ...Kind) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		for _, k := range ks {
			if tx.Kind == k {
				total = total.Add(tx.Amount)
				break
			}
		}
	}
	return total
}
