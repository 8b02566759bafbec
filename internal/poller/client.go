// Package poller schedules per-identity polls of the external activity
// feed and turns successful polls into incremental deltas on the event
// bus.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/grovelab/grove/internal/domain"
)

// Client fetches the absolute activity counters for one identity.
type Client interface {
	Snapshot(ctx context.Context, login domain.Login, token string) (*domain.ActivitySnapshot, error)
}

// RateLimitedError reports an upstream rate-limit rejection. Reset is
// the suggested wait before the next attempt; zero means the feed gave
// no hint.
type RateLimitedError struct {
	Reset time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.Reset > 0 {
		return fmt.Sprintf("rate limited, reset in %s", e.Reset)
	}
	return "rate limited"
}
