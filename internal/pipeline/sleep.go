// Package pipeline holds helpers shared by the producer and consumer loops.
package pipeline

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. It reports whether the full duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
