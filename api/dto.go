package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// EMPLOYEE DTOs
// =============================================================================

// EmployeeRequest syncs an employee from the HR system of record. When
// previous_rate is omitted and promotion_date is unchanged, the stored
// previous rate is kept.
type EmployeeRequest struct {
	Name          string           `json:"name"`
	HireDate      *string          `json:"hire_date,omitempty"`
	AccrualRate   decimal.Decimal  `json:"accrual_rate"`
	PromotionDate *string          `json:"promotion_date,omitempty"`
	PreviousRate  *decimal.Decimal `json:"previous_rate,omitempty"`
	LeftDate      *string          `json:"left_date,omitempty"`
	Status        string           `json:"status,omitempty"`
}

func (req EmployeeRequest) toEmployee(ref ledger.EmployeeRef) (ledger.Employee, error) {
	emp := ledger.Employee{
		Ref:          ref,
		Name:         req.Name,
		AccrualRate:  req.AccrualRate,
		PreviousRate: req.PreviousRate,
		Status:       ledger.Status(req.Status),
	}
	if emp.Status == "" {
		emp.Status = ledger.StatusActive
	}
	if !emp.Status.Valid() {
		return emp, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidEmployee, req.Status)
	}
	if emp.AccrualRate.IsNegative() || (emp.PreviousRate != nil && emp.PreviousRate.IsNegative()) {
		return emp, fmt.Errorf("%w: accrual rate must not be negative", ledger.ErrInvalidEmployee)
	}

	var err error
	if emp.HireDate, err = parseOptionalDate("hire_date", req.HireDate); err != nil {
		return emp, err
	}
	if emp.PromotionDate, err = parseOptionalDate("promotion_date", req.PromotionDate); err != nil {
		return emp, err
	}
	if emp.LeftDate, err = parseOptionalDate("left_date", req.LeftDate); err != nil {
		return emp, err
	}
	return emp, nil
}

type EmployeeDTO struct {
	Ref           string           `json:"ref"`
	Name          string           `json:"name"`
	HireDate      *string          `json:"hire_date,omitempty"`
	AccrualRate   decimal.Decimal  `json:"accrual_rate"`
	PromotionDate *string          `json:"promotion_date,omitempty"`
	PreviousRate  *decimal.Decimal `json:"previous_rate,omitempty"`
	LeftDate      *string          `json:"left_date,omitempty"`
	Status        string           `json:"status"`
}

func toEmployeeDTO(emp ledger.Employee) EmployeeDTO {
	return EmployeeDTO{
		Ref:           string(emp.Ref),
		Name:          emp.Name,
		HireDate:      formatOptionalDate(emp.HireDate),
		AccrualRate:   emp.AccrualRate,
		PromotionDate: formatOptionalDate(emp.PromotionDate),
		PreviousRate:  emp.PreviousRate,
		LeftDate:      formatOptionalDate(emp.LeftDate),
		Status:        string(emp.Status),
	}
}

// =============================================================================
// BALANCE DTOs
// =============================================================================

type BalanceDTO struct {
	EmployeeRef string          `json:"employee_ref"`
	Balance     decimal.Decimal `json:"balance"`
	Accrued     decimal.Decimal `json:"accrued"`
	Taken       decimal.Decimal `json:"taken"`
	Corrections decimal.Decimal `json:"corrections"`
	AsOf        string          `json:"as_of"`
	Rows        int             `json:"rows"`
}

func toBalanceDTO(s leave.Summary) BalanceDTO {
	return BalanceDTO{
		EmployeeRef: string(s.EmployeeRef),
		Balance:     s.Balance,
		Accrued:     s.Accrued,
		Taken:       s.Taken,
		Corrections: s.Corrections,
		AsOf:        s.AsOf.String(),
		Rows:        s.Rows,
	}
}

type CatchUpResponse struct {
	Created int             `json:"created"`
	Balance decimal.Decimal `json:"balance"`
}

// =============================================================================
// TRANSACTION DTOs
// =============================================================================

type TransactionDTO struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Period      *string         `json:"period,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID *int64          `json:"reference_id,omitempty"`
	Note        string          `json:"note"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:        int64(tx.ID),
		Kind:      string(tx.Kind),
		Amount:    tx.Amount,
		Note:      tx.Note,
		CreatedBy: tx.CreatedBy,
		CreatedAt: tx.CreatedAt,
	}
	if tx.Period != nil {
		p := tx.Period.String()
		dto.Period = &p
	}
	if tx.ReferenceID != nil {
		id := int64(*tx.ReferenceID)
		dto.ReferenceID = &id
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

// =============================================================================
// LEAVE DTOs
// =============================================================================

type LeaveRequest struct {
	DateFrom  string          `json:"date_from"`
	DateTo    string          `json:"date_to"`
	Days      decimal.Decimal `json:"days"`
	Paid      bool            `json:"paid"`
	LeaveType string          `json:"leave_type,omitempty"`
	Approver  string          `json:"approver,omitempty"`
	Recorder  string          `json:"recorder,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

func (req LeaveRequest) toInput() (leave.LeaveInput, error) {
	from, err := parseDate("date_from", req.DateFrom)
	if err != nil {
		return leave.LeaveInput{}, err
	}
	to, err := parseDate("date_to", req.DateTo)
	if err != nil {
		return leave.LeaveInput{}, err
	}
	return leave.LeaveInput{
		DateFrom:  from,
		DateTo:    to,
		Days:      req.Days,
		Paid:      req.Paid,
		LeaveType: req.LeaveType,
		Approver:  req.Approver,
		Recorder:  req.Recorder,
		Reason:    req.Reason,
	}, nil
}

type LeaveDTO struct {
	ID          int64           `json:"id"`
	EmployeeRef string          `json:"employee_ref"`
	DateFrom    string          `json:"date_from"`
	DateTo      string          `json:"date_to"`
	Days        decimal.Decimal `json:"days"`
	Paid        bool            `json:"paid"`
	LeaveType   string          `json:"leave_type,omitempty"`
	Approver    string          `json:"approver,omitempty"`
	Recorder    string          `json:"recorder,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toLeaveDTO(rec ledger.LeaveRecord) LeaveDTO {
	return LeaveDTO{
		ID:          int64(rec.ID),
		EmployeeRef: string(rec.EmployeeRef),
		DateFrom:    rec.DateFrom.String(),
		DateTo:      rec.DateTo.String(),
		Days:        rec.Days,
		Paid:        rec.Paid,
		LeaveType:   rec.LeaveType,
		Approver:    rec.Approver,
		Recorder:    rec.Recorder,
		Reason:      rec.Reason,
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

type LeaveCreatedResponse struct {
	ID      int64           `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// =============================================================================
// CORRECTION DTOs
// =============================================================================

type PromotionRequest struct {
	NewRate       decimal.Decimal `json:"new_rate"`
	PromotionDate string          `json:"promotion_date"`
	AsOf          *string         `json:"as_of,omitempty"`
}

type OverrideRequest struct {
	NewBalance decimal.Decimal `json:"new_balance"`
}

type OverrideResponse struct {
	Applied bool            `json:"applied"`
	Balance decimal.Decimal `json:"balance"`
}

// AdjustmentRequest books a signed correction. Kind is "adjustment" (default)
// or "import".
type AdjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
	Kind   string          `json:"kind,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DATE HELPERS
// =============================================================================

func parseDate(field, s string) (ledger.Date, error) {
	if s == "" {
		return ledger.Date{}, fmt.Errorf("%w: %s is required", errBadRequest, field)
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		return ledger.Date{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return d, nil
}

func parseOptionalDate(field string, s *string) (*ledger.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return &d, nil
}

func formatOptionalDate(d *ledger.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
