// Operation executor with retry logic.
//
// Information Hiding:
// - Retry strategy and backoff
// - Error classification
// - Per-call timeout and panic recovery

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPanic wraps a panic raised inside an operation.
var ErrPanic = errors.New("operation panicked")

// ExecConfig holds call execution settings.
// The zero value is safe: 30s timeout, no retries, 100ms base backoff.
type ExecConfig struct {
	CallTimeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries   uint32
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultExecConfig returns the settings used for return-expected commands.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		CallTimeout: 30 * time.Second,
		Retries:     2,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Timeout returns the per-attempt timeout, defaulting to 30 seconds.
func (c ExecConfig) Timeout() time.Duration {
	if c.CallTimeout <= 0 {
		return 30 * time.Second
	}
	return c.CallTimeout
}

// Executor runs operations with retry and timeout support.
type Executor struct {
	config ExecConfig
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(config ExecConfig) *Executor {
	return &Executor{config: config}
}

// Execute calls op, retrying transient failures with exponential backoff.
func (e *Executor) Execute(ctx context.Context, op Operation, req Request) (string, error) {
	var lastErr error
	attempts := e.config.Retries + 1

	for attempt := uint32(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.calculateBackoff(attempt)):
			}
		}

		out, err := e.ExecuteOnce(ctx, op, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return "", err
		}
	}

	if attempts > 1 {
		return "", fmt.Errorf("%s failed after %d attempts: %w", op.Name, attempts, lastErr)
	}
	return "", lastErr
}

// ExecuteOnce calls op a single time under the per-call timeout.
func (e *Executor) ExecuteOnce(ctx context.Context, op Operation, req Request) (out string, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanic, op.Name, r)
		}
	}()

	return op.Call(ctx, req)
}

func (e *Executor) calculateBackoff(attempt uint32) time.Duration {
	base := e.config.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := e.config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	delay := base * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrPanic) {
		return false
	}
	if errors.Is(err, ErrArity) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnknownOperation) {
		return false
	}

	errLower := strings.ToLower(err.Error())

	// Bad input and missing items do not improve with another attempt.
	nonRetryable := []string{"validation", "not found", "invalid", "permission", "unauthorized"}
	for _, s := range nonRetryable {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	return true
}
