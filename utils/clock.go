package utils

import (
	"os"
	"sync"
	"time"
)

// All business timestamps (status transitions, queue entries, retry stamps)
// use the terminal's local time, not server time. The zone comes from
// TIMEZONE and defaults to the port's zone.

const defaultTimezone = "America/El_Salvador"

var (
	nowFunc = time.Now

	locOnce  sync.Once
	location *time.Location
)

func timeLocation() *time.Location {
	locOnce.Do(func() {
		tz := os.Getenv("TIMEZONE")
		if tz == "" {
			tz = defaultTimezone
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			loc = time.UTC
		}
		location = loc
	})
	return location
}

// Now returns the current time in the terminal's timezone.
func Now() time.Time {
	return nowFunc().In(timeLocation())
}

// SetNowFunc swaps the clock source and returns a restore func. Test seam.
func SetNowFunc(fn func() time.Time) func() {
	prev := nowFunc
	nowFunc = fn
	return func() { nowFunc = prev }
}
