// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/tola-labs/cfusage/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// InLocation reports another clock's time in a fixed location, so calendar
// dates (and with them quarter boundaries) follow that zone.
type InLocation struct {
	Clock    ports.Clock
	Location *time.Location
}

// NewInLocation wraps c. A nil location means UTC.
func NewInLocation(c ports.Clock, loc *time.Location) InLocation {
	if loc == nil {
		loc = time.UTC
	}
	return InLocation{Clock: c, Location: loc}
}

// Now returns the wrapped clock's time in Location.
func (c InLocation) Now() time.Time {
	return c.Clock.Now().In(c.Location)
}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// AdvanceDays moves the fake time forward by whole calendar days.
func (f *Fake) AdvanceDays(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.AddDate(0, 0, n)
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = InLocation{}
	_ ports.Clock = (*Fake)(nil)
)
