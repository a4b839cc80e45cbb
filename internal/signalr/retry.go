package signalr

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rendis/unitconsole/pkg/schema"
)

// ReconnectPolicy controls how a dropped channel is re-established.
type ReconnectPolicy struct {
	// MaxAttempts is the number of reconnect attempts after a drop. Zero disables reconnects.
	MaxAttempts int
	// Backoff is one of "exponential", "linear" or "constant".
	Backoff  string
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultReconnectPolicy retries for a bit over a minute before giving up.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 6,
		Backoff:     "exponential",
		Delay:       time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Wait returns the delay before reconnect attempt number attempt (zero based).
func (p ReconnectPolicy) Wait(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.Backoff {
	case "exponential":
		multiplier := time.Duration(1)
		for i := 0; i < attempt; i++ {
			multiplier *= 2
		}
		delay = p.Delay * multiplier
	case "linear":
		delay = p.Delay * time.Duration(attempt+1)
	default:
		delay = p.Delay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// isRetryable classifies whether a failed connection may succeed on a later attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ce *schema.ConsoleError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code != websocket.ClosePolicyViolation
	}

	// Network and unknown failures are retried; MaxAttempts bounds them.
	return true
}

// waitForBackoff sleeps for delay or returns early if ctx is cancelled.
func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
