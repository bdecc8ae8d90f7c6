// Package system provides the wall clock used to stamp scrape runs.
package system

import "time"

// Clock implements pet.Clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to milliseconds, the precision
// kept in archive names and completion events.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
