// Package quarter maps calendar dates onto fiscal quarters and usage windows.
// Every function here is pure: "now" is always passed in by the caller.
package quarter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for dates (start/end query parameters).
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date or period cannot be placed in a quarter
// of the requested year, or the period lies in the future.
var ErrInvalidDate = errors.New("invalid date")

// DateFormatError is returned when a date string does not match DateLayout.
type DateFormatError struct {
	Value string
	Err   error
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid date format %q, want YYYY-MM-DD", e.Value)
}

func (e *DateFormatError) Unwrap() error { return e.Err }

// startMonths holds the first month of each quarter, indexed by quarter-1.
var startMonths = [4]time.Month{time.January, time.April, time.July, time.October}

// Period identifies one quarter of one year.
type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// String renders the period as "2024-Q1".
func (p Period) String() string {
	return fmt.Sprintf("%d-Q%d", p.Year, p.Quarter)
}

// Valid reports whether the quarter number is in 1..4 and the year is positive.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Quarter >= 1 && p.Quarter <= 4
}

// ParsePeriod parses "2024-Q1" (case-insensitive).
func ParsePeriod(s string) (Period, error) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(s)), "-Q", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("%w: period %q, want YYYY-Qn", ErrInvalidDate, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("%w: period %q, want YYYY-Qn", ErrInvalidDate, s)
	}
	q, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: period %q, want YYYY-Qn", ErrInvalidDate, s)
	}
	p := Period{Year: year, Quarter: q}
	if !p.Valid() {
		return Period{}, fmt.Errorf("%w: period %q out of range", ErrInvalidDate, s)
	}
	return p, nil
}

// Day truncates t to its calendar date at UTC midnight.
// The calendar date of t in its own location is kept.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Of returns the quarter (1..4) of the given year that contains date.
// A date outside that year yields ErrInvalidDate.
// This is a PURE function.
func Of(year int, date time.Time) (int, error) {
	if date.Year() != year {
		return 0, fmt.Errorf("%w: %s is not in %d", ErrInvalidDate, Format(date), year)
	}
	return int(date.Month()-1)/3 + 1, nil
}

// PeriodOf returns the period containing date.
func PeriodOf(date time.Time) Period {
	q, _ := Of(date.Year(), date)
	return Period{Year: date.Year(), Quarter: q}
}

// Bounds returns the first and last calendar day of the quarter.
func Bounds(year, q int) (start, end time.Time, err error) {
	p := Period{Year: year, Quarter: q}
	if !p.Valid() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: quarter %d of %d", ErrInvalidDate, q, year)
	}
	start = time.Date(year, startMonths[q-1], 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 3, -1)
	return start, end, nil
}

// Elapsed lists Q1 of now's year through the quarter containing now, in order.
// This is a PURE function.
func Elapsed(now time.Time) []Period {
	current := PeriodOf(now)
	periods := make([]Period, 0, current.Quarter)
	for q := 1; q <= current.Quarter; q++ {
		periods = append(periods, Period{Year: current.Year, Quarter: q})
	}
	return periods
}

// DaysElapsed counts calendar days from start through end inclusive, never less than 1.
// This is a PURE function.
func DaysElapsed(start, end time.Time) int {
	days := int(Day(end).Sub(Day(start)).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// Window is the date range one rollup covers.
type Window struct {
	Period Period
	Start  time.Time
	End    time.Time
}

// Days is the inclusive day count of the window.
func (w Window) Days() int {
	return DaysElapsed(w.Start, w.End)
}

// Range resolves the window for a quarter as seen at now: past quarters run to
// their last day, the current quarter ends today, future quarters are rejected.
// This is a PURE function.
func Range(year, q int, now time.Time) (Window, error) {
	start, end, err := Bounds(year, q)
	if err != nil {
		return Window{}, err
	}
	today := Day(now)
	if start.After(today) {
		return Window{}, fmt.Errorf("%w: %d-Q%d has not started", ErrInvalidDate, year, q)
	}
	if end.After(today) {
		end = today
	}
	return Window{Period: Period{Year: year, Quarter: q}, Start: start, End: end}, nil
}

// CustomRange builds a window for an explicit start/end pair. The period is the
// quarter containing start; end must not precede start.
func CustomRange(start, end time.Time) (Window, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return Window{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidDate, Format(end), Format(start))
	}
	return Window{Period: PeriodOf(start), Start: start, End: end}, nil
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &DateFormatError{Value: s, Err: err}
	}
	return t, nil
}
