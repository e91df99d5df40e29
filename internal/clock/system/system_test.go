// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

func TestCaptureLayoutRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, time.March, 1, 9, 5, 7, 0, time.UTC)
	got := ts.Format(CaptureLayout)
	if got != "2024-03-01 09:05:07" {
		t.Fatalf("unexpected capture format %q", got)
	}
}
