package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// Default retry budgets. Repeating a mutation is riskier than repeating a read.
const (
	DefaultReadRetries  = 2
	DefaultWriteRetries = 1
)

// DefaultBaseDelay is the delay before the first retry.
const DefaultBaseDelay = 300 * time.Millisecond

// Transient is implemented by errors that may succeed when the same request
// is sent again (server errors, network errors, timeouts).
type Transient interface {
	Transient() bool
}

// IsTransient reports whether err, or any error it wraps, is transient.
// Timeouts raised by this package are always transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// ReadRetries is the retry budget for GET and HEAD requests.
	// Default: 2
	ReadRetries int

	// WriteRetries is the retry budget for POST, PUT, PATCH and DELETE.
	// Default: 1
	WriteRetries int

	// BaseDelay is the delay before the first retry.
	// Default: 300ms
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% randomness to each delay.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: IsTransient.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt. attempt is zero-based and
	// names the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Wait blocks for d or until ctx is done.
	// Default: a timer-based wait.
	Wait func(ctx context.Context, d time.Duration) error
}

// RetryPolicy decides whether a failed attempt is repeated and how long to
// wait before doing so. A zero-value policy is not usable; use NewRetryPolicy.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, applying defaults for unset fields.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	// Apply defaults
	if config.ReadRetries <= 0 {
		config.ReadRetries = DefaultReadRetries
	}
	if config.WriteRetries <= 0 {
		config.WriteRetries = DefaultWriteRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = IsTransient
	}
	if config.Wait == nil {
		config.Wait = wait
	}

	return &RetryPolicy{config: config}
}

// Budget returns the default number of retries for an HTTP method.
// Reads get DefaultReadRetries, everything else DefaultWriteRetries unless
// configured otherwise.
func (p *RetryPolicy) Budget(method string) int {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return p.config.ReadRetries
	default:
		return p.config.WriteRetries
	}
}

// Limit returns the retry budget for a call that asked for requested
// retries. A negative request uses Budget. Reads are capped at the read
// default; other methods get what they asked for.
func (p *RetryPolicy) Limit(method string, requested int) int {
	if requested < 0 {
		return p.Budget(method)
	}
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return min(requested, p.config.ReadRetries)
	default:
		return requested
	}
}

// ShouldRetry reports whether the attempt that produced err should be
// repeated. attempt is zero-based: the first send is attempt 0, so at most
// maxRetries+1 attempts are made.
func (p *RetryPolicy) ShouldRetry(err error, attempt, maxRetries int) bool {
	if err == nil || attempt >= maxRetries {
		return false
	}
	return p.config.RetryIf(err)
}

// DelayFor returns the wait between attempt and attempt+1:
// base * Multiplier^attempt, capped at MaxDelay. A non-positive base falls
// back to the configured BaseDelay.
func (p *RetryPolicy) DelayFor(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = p.config.BaseDelay
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Duration(float64(base) * math.Pow(p.config.Multiplier, float64(attempt)))

	// Cap at max delay
	if p.config.MaxDelay > 0 && delay > p.config.MaxDelay {
		delay = p.config.MaxDelay
	}

	if p.config.Jitter && delay > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay/4) + 1))
	}

	return delay
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. The last error is returned unchanged. op receives
// the zero-based attempt number.
func (p *RetryPolicy) Do(ctx context.Context, maxRetries int, base time.Duration, op func(ctx context.Context, attempt int) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		if !p.ShouldRetry(err, attempt, maxRetries) {
			return err
		}

		delay := p.DelayFor(attempt, base)

		if p.config.OnRetry != nil {
			p.config.OnRetry(attempt, err, delay)
		}

		if werr := p.config.Wait(ctx, delay); werr != nil {
			return err
		}
	}
}

// Config returns the retry configuration.
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}

func wait(ctx context.Context, d time.Duration) error {
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
