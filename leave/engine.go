/*
Package leave is the leave-balance engine: accrual catch-up, promotion
recalculation, leave recording and manual overrides on top of a
ledger.Store.

PURPOSE:
  Every operation that changes an employee's balance goes through Engine.
  Each mutating operation runs inside one Store.WithEmployeeTx, so its
  writes commit together or not at all, and operations on the same
  employee never interleave.

OPERATIONS:
  CatchUpAccruals          accrual.go
  GetBalance, Summary      balance.go
  RecalculateForPromotion  promotion.go
  RecordLeave, EditLeave,
  DeleteLeave              recorder.go
  ApplyManualOverride,
  RecordAdjustment,
  ImportBalance            override.go
  History, Leaves          history.go

TIME:
  The engine reads "today" from its Clock. Tests pass a
  ledger.FixedClock, production uses ledger.SystemClock.

SEE ALSO:
  - ledger/store.go: Store contract
  - api/handlers.go: HTTP surface over Engine
*/
package leave

import (
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
)

// Engine applies leave-balance operations to a Store.
type Engine struct {
	store ledger.Store
	clock ledger.Clock
	log   *zap.Logger
}

type Option func(*Engine)

func WithClock(c ledger.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(store ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: ledger.SystemClock{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("leave")
	return e
}

// Today returns the engine's current calendar day.
func (e *Engine) Today() ledger.Date { return ledger.Today(e.clock) }

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

func refField(ref ledger.EmployeeRef) zap.Field { return zap.String("employee_ref", string(ref)) }
