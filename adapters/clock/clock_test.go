package clock_test

import (
	"testing"
	"time"

	"github.com/tola-labs/cfusage/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(time.Hour)
	if want := start.Add(time.Hour); !c.Now().Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", c.Now(), want)
	}

	c.AdvanceDays(1)
	if got := c.Now(); got.Month() != time.April || got.Day() != 1 {
		t.Errorf("after AdvanceDays, Now() = %v, want April 1", got)
	}

	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", c.Now(), later)
	}
}

func TestInLocation(t *testing.T) {
	// 02:00 UTC on April 1 is still March 31 in New York.
	utc := time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)
	ny := time.FixedZone("EDT", -4*60*60)

	c := clock.NewInLocation(clock.NewFake(utc), ny)
	got := c.Now()

	if got.Month() != time.March || got.Day() != 31 {
		t.Errorf("Now() = %v, want March 31 local", got)
	}
	if !got.Equal(utc) {
		t.Errorf("Now() = %v, want same instant as %v", got, utc)
	}
}

func TestInLocation_NilMeansUTC(t *testing.T) {
	in := time.Date(2024, 4, 1, 2, 0, 0, 0, time.FixedZone("X", 3600))
	c := clock.NewInLocation(clock.NewFake(in), nil)

	if c.Now().Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", c.Now().Location())
	}
}
