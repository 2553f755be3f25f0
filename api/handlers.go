/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the leave engine over JSON. Handlers parse the request, resolve
  the employee from the directory, call one engine operation and serialize
  the result.

ENDPOINTS:
  Employees:
    GET    /api/employees                          List synced employees
    PUT    /api/employees/{ref}                    Sync employee facts
    GET    /api/employees/{ref}                    Employee details
    GET    /api/employees/{ref}/balance            Balance with breakdown
    GET    /api/employees/{ref}/transactions       History (?kind=&from=&to=&limit=)
    POST   /api/employees/{ref}/accruals/catch-up  Catch up accruals now

  Leave:
    POST   /api/employees/{ref}/leaves             Record approved leave
    GET    /api/employees/{ref}/leaves             List leave records
    GET    /api/leaves/{id}                        Leave details
    PUT    /api/leaves/{id}                        Edit leave
    DELETE /api/leaves/{id}                        Delete leave

  Corrections:
    POST   /api/employees/{ref}/promotions         Retroactive rate change
    POST   /api/employees/{ref}/override           Set balance to a value
    POST   /api/employees/{ref}/adjustments        Signed adjustment or import

OPERATOR:
  The caller's identity is taken from the X-Operator header and recorded
  as created_by. Authentication happens in front of this service.

ERROR HANDLING:
  See errors.go. 400 invalid input, 404 unknown employee or leave,
  409 inactive employee or duplicate accrual, 503 storage failure.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// OperatorHeader carries the identity recorded on audit rows.
const OperatorHeader = "X-Operator"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *leave.Engine
	Employees ledger.Directory
	Log       *zap.Logger
}

func NewHandler(engine *leave.Engine, employees ledger.Directory, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Employees: employees, Log: log.Named("api")}
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func operator(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OperatorHeader))
}

func employeeRef(r *http.Request) ledger.EmployeeRef {
	return ledger.EmployeeRef(chi.URLParam(r, "ref"))
}

// employee resolves the {ref} path parameter through the directory.
func (h *Handler) employee(r *http.Request) (ledger.Employee, error) {
	return h.Employees.GetEmployee(r.Context(), employeeRef(r))
}

func leaveID(r *http.Request) (ledger.LeaveID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid leave id %q", errBadRequest, chi.URLParam(r, "id"))
	}
	return ledger.LeaveID(id), nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Employees.ListEmployees(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, emp := range employees {
		dtos[i] = toEmployeeDTO(emp)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutEmployee syncs the employee facts the engine reads.
func (h *Handler) PutEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ref := employeeRef(r)
	if ref == "" {
		h.fail(w, r, ledger.ErrInvalidEmployee)
		return
	}
	emp, err := req.toEmployee(ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if emp.PreviousRate == nil {
		existing, err := h.Employees.GetEmployee(r.Context(), ref)
		if err != nil && !ledger.IsNotFound(err) {
			h.fail(w, r, err)
			return
		}
		if err == nil && samePromotion(existing.PromotionDate, emp.PromotionDate) {
			emp.PreviousRate = existing.PreviousRate
		}
	}
	if err := h.Employees.SaveEmployee(r.Context(), emp); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

func samePromotion(a, b *ledger.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// GetBalance catches up accruals and returns the balance breakdown.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.Engine.Summary(r.Context(), emp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(summary))
}

// GetTransactions returns history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.employee(r); err != nil {
		h.fail(w, r, err)
		return
	}
	txs, err := h.Engine.History(r.Context(), employeeRef(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// parseHistoryFilter reads kind (repeatable or comma separated), from and to
// (dates, to inclusive) and limit.
func parseHistoryFilter(r *http.Request) (ledger.HistoryFilter, error) {
	var filter ledger.HistoryFilter
	q := r.URL.Query()

	for _, raw := range q["kind"] {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				filter.Kinds = append(filter.Kinds, ledger.Kind(k))
			}
		}
	}
	if s := q.Get("from"); s != "" {
		d, err := parseDate("from", s)
		if err != nil {
			return filter, err
		}
		from := d.Time()
		filter.From = &from
	}
	if s := q.Get("to"); s != "" {
		d, err := parseDate("to", s)
		if err != nil {
			return filter, err
		}
		to := d.AddDays(1).Time()
		filter.To = &to
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return filter, fmt.Errorf("%w: invalid limit %q", errBadRequest, s)
		}
		filter.Limit = n
	}
	return filter, nil
}

// CatchUp runs accrual catch-up to today for one employee.
func (h *Handler) CatchUp(w http.ResponseWriter, r *http.Request) {
	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.Engine.CatchUpAccruals(r.Context(), emp, h.Engine.Today())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.Engine.GetBalance(r.Context(), emp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CatchUpResponse{Created: created, Balance: balance})
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) RecordLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.Engine.RecordLeave(r.Context(), emp, in, operator(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.Engine.GetBalance(r.Context(), emp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, LeaveCreatedResponse{ID: int64(id), Balance: balance})
}

func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	if _, err := h.employee(r); err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.Engine.Leaves(r.Context(), employeeRef(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]LeaveDTO, len(records))
	for i, rec := range records {
		dtos[i] = toLeaveDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	id, err := leaveID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.Engine.Leave(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(rec))
}

func (h *Handler) EditLeave(w http.ResponseWriter, r *http.Request) {
	id, err := leaveID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req LeaveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Engine.EditLeave(r.Context(), id, in); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.Engine.Leave(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(rec))
}

func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	id, err := leaveID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Engine.DeleteLeave(r.Context(), id, operator(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// Promote recalculates accruals at the new rate and stores the new rate,
// promotion date and replaced rate on the employee in the same transaction.
// A failed request changes nothing and can be retried as is.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	var req PromotionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	promotionDate, err := parseDate("promotion_date", req.PromotionDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.NewRate.IsNegative() {
		h.fail(w, r, fmt.Errorf("%w: new_rate must not be negative", errBadRequest))
		return
	}
	asOf := h.Engine.Today()
	if req.AsOf != nil {
		if asOf, err = parseDate("as_of", *req.AsOf); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	promoted, err := h.Engine.PromoteEmployee(r.Context(), emp, req.NewRate, promotionDate, asOf, operator(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := h.Engine.Summary(r.Context(), promoted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(summary))
}

func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	applied, err := h.Engine.ApplyManualOverride(r.Context(), emp, req.NewBalance, operator(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.Engine.GetBalance(r.Context(), emp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OverrideResponse{Applied: applied, Balance: balance})
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Amount.Equal(decimal.Zero) && req.Kind != string(ledger.KindImport) {
		h.fail(w, r, fmt.Errorf("%w: amount must not be zero", errBadRequest))
		return
	}
	emp, err := h.employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var tx ledger.Transaction
	switch ledger.Kind(req.Kind) {
	case "", ledger.KindAdjustment:
		tx, err = h.Engine.RecordAdjustment(r.Context(), emp, req.Amount, req.Note, operator(r))
	case ledger.KindImport:
		tx, err = h.Engine.ImportBalance(r.Context(), emp, req.Amount, req.Note, operator(r))
	default:
		err = fmt.Errorf("%w: kind must be adjustment or import", errBadRequest)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
