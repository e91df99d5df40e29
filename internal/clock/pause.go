// Package clock holds time helpers shared by the fetch and aggregation loops.
package clock

import (
	"context"
	"fmt"
	"time"
)

// Pause blocks for d or until ctx is done. A non-positive d returns immediately.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	}
}
