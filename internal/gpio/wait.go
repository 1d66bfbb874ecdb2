package gpio

import (
	"context"
	"time"
)

// waitEdge takes events from edges until one matches want.
func waitEdge(ctx context.Context, edges <-chan EdgeEvent, want Edge, timeout time.Duration) (EdgeEvent, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return EdgeEvent{}, ctx.Err()
		case <-expired:
			return EdgeEvent{}, ErrTimeout
		case ev := <-edges:
			if want.Matches(ev.Rising) {
				return ev, nil
			}
		}
	}
}
