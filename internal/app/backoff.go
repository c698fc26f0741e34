package app

import (
	"context"
	"time"
)

const maxBackoffShift = 10

// backoffDelay returns base * 2^attempt with a shift cap so repeated retries
// cannot overflow into nonsense durations.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base << uint(attempt)
}

// sleepContext waits for d or until ctx is done, reporting whether the full
// delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
