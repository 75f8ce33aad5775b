// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"time"

	"github.com/juju/clock/testclock"
)

const (
	// ShortWait is how long a test blocks waiting for something that
	// should not happen.
	ShortWait = 50 * time.Millisecond

	// LongWait bounds waits for things that should already have
	// happened; passing tests never sleep this long.
	LongWait = 10 * time.Second
)

// ClockStart is the time test clocks start at. It has a comfortable h:m:s
// component but:
//
//	(1) is past the int32 unix epoch limit;
//	(2) has a 5ns offset to make sure we're not discarding precision;
//	(3) is in a weird time zone.
var ClockStart = mustParse("2073-03-03T01:00:00.000000005-08:40")

// Offset returns ClockStart.Add(d); it exists to make expiry
// assertions easier to write.
func Offset(d time.Duration) time.Time {
	return ClockStart.Add(d)
}

// NewClock returns a test clock set to ClockStart.
func NewClock() *testclock.Clock {
	return testclock.NewClock(ClockStart)
}

func mustParse(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(err)
	}
	return t
}
