/*
scheduler.go - Automated accrual catch-up scheduler

PURPOSE:
  Periodically brings every synced employee's accruals up to date so that
  balances read through other paths (reports, exports) do not lag behind
  the calendar.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Catch-up is idempotent, so overlapping with request-driven catch-up
    only costs time; the unique accrual period index prevents duplicates
  - A failure for one employee is logged and does not stop the run

CONFIGURATION:
  - accrual.interval: How often to run (default: 24h)
  - accrual.scheduler_enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(engine, directory, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CatchUp endpoint (manual catch-up for one employee)
  - leave/accrual.go: CatchUpAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// AccrualScheduler runs CatchUpAll on a ticker.
type AccrualScheduler struct {
	Engine        *leave.Engine
	Employees     ledger.Directory
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewAccrualScheduler(engine *leave.Engine, employees ledger.Directory, log *zap.Logger) *AccrualScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccrualScheduler{
		Engine:        engine,
		Employees:     employees,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		log:           log.Named("scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(ctx)

	s.log.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop cancels any in-flight run and waits for the goroutine to exit.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("scheduler stopped")
}

func (s *AccrualScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce catches up every employee with a hire date to today. Departed
// employees are included so late-synced departures still get their rows.
func (s *AccrualScheduler) RunOnce(ctx context.Context) leave.BatchResult {
	start := time.Now()

	employees, err := s.Employees.ListEmployees(ctx)
	if err != nil {
		s.log.Error("list employees failed", zap.Error(err))
		return leave.BatchResult{Failed: map[ledger.EmployeeRef]error{}}
	}

	hired := employees[:0:0]
	for _, emp := range employees {
		if emp.HireDate != nil {
			hired = append(hired, emp)
		}
	}

	result := s.Engine.CatchUpAll(ctx, hired, s.Engine.Today())
	if result.Created > 0 || len(result.Failed) > 0 {
		s.log.Info("catch-up run completed",
			zap.Int("processed", result.Processed),
			zap.Int("created", result.Created),
			zap.Int("failed", len(result.Failed)),
			zap.Duration("duration", time.Since(start)))
	}
	return result
}
