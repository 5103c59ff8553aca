package l1

import (
	"context"
	"fmt"
	"time"
)

// RetryHandler paces retries of failed L1 calls and bounds their number.
type RetryHandler struct {
	RetryAfterErrorPeriod      time.Duration
	MaxRetryAttemptsAfterError int
}

// Handle waits before the next attempt. It fails once attempts reaches the
// maximum, or when ctx is done.
func (h *RetryHandler) Handle(ctx context.Context, funcName string, attempts int) error {
	if h.MaxRetryAttemptsAfterError > -1 && attempts >= h.MaxRetryAttemptsAfterError {
		return fmt.Errorf("%s failed too many times (%d)", funcName, h.MaxRetryAttemptsAfterError)
	}
	timer := time.NewTimer(h.RetryAfterErrorPeriod)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
