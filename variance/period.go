package variance

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The month a budget or actual belongs to
// =============================================================================

// LabelLayout is the period label format used by both source systems.
const LabelLayout = "2006-01"

// Period is a labelled, inclusive date range. Budgets are monthly in practice
// but Start/End are carried as given so custom ranges round-trip.
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the calendar month period for year/month.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Label: start.Format(LabelLayout),
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}

// ParsePeriod parses a YYYY-MM label into its calendar month.
func ParsePeriod(label string) (Period, error) {
	t, err := time.Parse(LabelLayout, label)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, label)
	}
	return MonthPeriod(t.Year(), t.Month()), nil
}

// MustParsePeriod is ParsePeriod for fixtures and constants.
func MustParsePeriod(label string) Period {
	p, err := ParsePeriod(label)
	if err != nil {
		panic(err)
	}
	return p
}

// Valid reports whether start <= end. Zero dates are allowed (label-only).
func (p Period) Valid() bool {
	if p.Start.IsZero() || p.End.IsZero() {
		return true
	}
	return !p.End.Before(p.Start)
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Previous returns the calendar month before this period.
func (p Period) Previous() Period {
	start := p.Start
	if start.IsZero() {
		parsed, err := ParsePeriod(p.Label)
		if err != nil {
			return Period{}
		}
		start = parsed.Start
	}
	prev := start.AddDate(0, -1, 0)
	return MonthPeriod(prev.Year(), prev.Month())
}

// Next returns the calendar month after this period.
func (p Period) Next() Period {
	start := p.Start
	if start.IsZero() {
		parsed, err := ParsePeriod(p.Label)
		if err != nil {
			return Period{}
		}
		start = parsed.Start
	}
	next := start.AddDate(0, 1, 0)
	return MonthPeriod(next.Year(), next.Month())
}

// String returns a string representation of the period.
func (p Period) String() string {
	if p.Start.IsZero() {
		return p.Label
	}
	return p.Label + " [" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}
