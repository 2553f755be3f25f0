package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Calendar month an accrual belongs to
// =============================================================================

// Period is a calendar year-month rendered as "YYYY-MM". Accruals are tagged
// with the period they credit.
type Period struct {
	Year  int
	Month time.Month
}

const periodLayout = "2006-01"

func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// ParsePeriod parses a "YYYY-MM" string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// AddMonths shifts the period by n months, crossing year boundaries.
func (p Period) AddMonths(n int) Period {
	idx := p.index() + n
	return Period{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

func (p Period) Next() Period { return p.AddMonths(1) }
func (p Period) Prev() Period { return p.AddMonths(-1) }

func (p Period) index() int { return p.Year*12 + int(p.Month) - 1 }

// Compare returns -1, 0 or +1 as p is before, equal to or after other.
func (p Period) Compare(other Period) int {
	switch a, b := p.index(), other.index(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (p Period) Before(other Period) bool { return p.Compare(other) < 0 }
func (p Period) After(other Period) bool  { return p.Compare(other) > 0 }

// Start returns the first day of the period.
func (p Period) Start() Date { return NewDate(p.Year, p.Month, 1) }

// End returns the last day of the period.
func (p Period) End() Date { return p.Next().Start().AddDays(-1) }

// PeriodsBetween returns every period from first to last inclusive, or nil
// when last is before first.
func PeriodsBetween(first, last Period) []Period {
	if last.Before(first) {
		return nil
	}
	out := make([]Period, 0, last.index()-first.index()+1)
	for p := first; !p.After(last); p = p.Next() {
		out = append(out, p)
	}
	return out
}
