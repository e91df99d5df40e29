// Package system provides the wall clock used to stamp capture times.
package system

import "time"

// CaptureLayout is the timestamp layout written into records and the run log.
const CaptureLayout = "2006-01-02 15:04:05"

// Clock implements ingest.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
