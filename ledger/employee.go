package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE - Read-only view of the employee record the ledger works from
// =============================================================================

type Status string

const (
	StatusActive Status = "active"
	StatusLeft   Status = "left"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusLeft }

// Employee is owned by the surrounding HR application. The ledger reads the
// hire date, accrual rate and departure fields. The only write it makes is
// recording a promotion (rate, date and the rate it replaced).
type Employee struct {
	Ref           EmployeeRef
	Name          string
	HireDate      *Date
	AccrualRate   decimal.Decimal  // days credited per month
	PromotionDate *Date            // last rate change
	PreviousRate  *decimal.Decimal // rate before PromotionDate's switchover month
	LeftDate      *Date
	Status        Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Employee) Active() bool { return e.Status != StatusLeft }

// SwitchoverPeriod returns the first period accrued at a rate that changed on
// d: the same month when d is the 1st, otherwise the following month.
func SwitchoverPeriod(d Date) Period {
	p := d.Period()
	if d.Day() != 1 {
		p = p.Next()
	}
	return p
}

// RateFor returns the accrual rate in effect for p. Periods before the last
// promotion's switchover use PreviousRate when it is known.
func (e Employee) RateFor(p Period) decimal.Decimal {
	if e.PromotionDate != nil && e.PreviousRate != nil && p.Before(SwitchoverPeriod(*e.PromotionDate)) {
		return *e.PreviousRate
	}
	return e.AccrualRate
}

// Departure returns the day the employee stopped accruing. An employee marked
// Left without a recorded date is treated as departing on asOf.
func (e Employee) Departure(asOf Date) (Date, bool) {
	if e.LeftDate != nil {
		return *e.LeftDate, true
	}
	if e.Status == StatusLeft {
		return asOf, true
	}
	return Date{}, false
}

// =============================================================================
// LEAVE RECORD
// =============================================================================

// LeaveRecord is an approved absence. Exactly one leave_taken transaction
// references it while it exists.
type LeaveRecord struct {
	ID          LeaveID
	EmployeeRef EmployeeRef
	DateFrom    Date
	DateTo      Date
	Days        decimal.Decimal
	Paid        bool
	LeaveType   string
	Approver    string
	Recorder    string
	Reason      string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
