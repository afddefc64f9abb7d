// Package wait holds the context-aware sleep shared by the throttled loops.
package wait

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the timer-backed Sleeper. A non-positive d only checks ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Or returns s, or Sleep when s is nil.
func Or(s Sleeper) Sleeper {
	if s == nil {
		return Sleep
	}
	return s
}
