package resilience

import (
	"context"
	"errors"
	"net"
	"time"
)

// DefaultTimeout bounds a single request when the caller sets none. Callers
// issuing long-running generation requests configure a much larger bound.
const DefaultTimeout = 30 * time.Second

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: DefaultTimeout
	Timeout time.Duration
}

// Timeout wraps operations with a deadline.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	// Apply defaults
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Timeout{config: config}
}

// Execute runs op with a child context carrying the deadline. When the
// deadline expires the child context is cancelled, which aborts any transport
// call made with it, and ErrTimeout is returned. Cancellation of the parent
// context is reported as the parent's error, not as a timeout.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	err := op(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || IsTimeout(err) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	t := NewTimeout(TimeoutConfig{Timeout: timeout})
	return t.Execute(ctx, op)
}

// IsTimeout reports whether err describes an expired deadline, either from a
// context or from the network stack.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
