package ledger

import "sync"

// EmployeeLocks hands out one mutex per employee. Entries are dropped once
// no goroutine holds or waits on them.
type EmployeeLocks struct {
	mu    sync.Mutex
	locks map[EmployeeRef]*refLock
}

type refLock struct {
	mu      sync.Mutex
	holders int
}

// Lock blocks until the employee's lock is held and returns its release.
func (l *EmployeeLocks) Lock(ref EmployeeRef) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[EmployeeRef]*refLock)
	}
	rl, ok := l.locks[ref]
	if !ok {
		rl = &refLock{}
		l.locks[ref] = rl
	}
	rl.holders++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.holders--
		if rl.holders == 0 {
			delete(l.locks, ref)
		}
		l.mu.Unlock()
	}
}
