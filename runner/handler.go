package runner

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler holds a retry policy. It carries no per-run state, so one handler
// can drive any number of concurrent Do calls.
type Handler struct {
	logger        Logger
	errorHandler  func(attempt int, err error)
	retryStrategy RetryStrategy
	maxAttempts   int
}

// NewHandler constructs a Handler from options. By default it makes a single
// attempt with no delay.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		maxAttempts:   1,
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// MaxAttempts returns the configured attempt budget.
func (h *Handler) MaxAttempts() int {
	if h == nil || h.maxAttempts < 1 {
		return 1
	}
	return h.maxAttempts
}

// Strategy returns the configured retry strategy.
func (h *Handler) Strategy() RetryStrategy {
	if h == nil || h.retryStrategy == nil {
		return NoDelayStrategy{}
	}
	return h.retryStrategy
}

// Do calls fn until it succeeds, the attempt budget is spent, the strategy
// declines a retry or ctx is done while waiting between attempts. It returns
// the value of the successful call, the number of attempts made and the last
// error. The error returned by fn is passed through unchanged. When ctx ends
// the wait, the returned error matches both ctx.Err() and the last fn error.
func Do[R any](ctx context.Context, h *Handler, fn func(ctx context.Context, attempt int) (R, error)) (R, int, error) {
	if h == nil {
		h = NewHandler()
	}
	maxAttempts := h.MaxAttempts()
	strategy := h.Strategy()

	var (
		zero R
		err  error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var value R
		value, err = fn(ctx, attempt)
		if err == nil {
			return value, attempt + 1, nil
		}

		if h.errorHandler != nil {
			h.errorHandler(attempt, err)
		}

		if attempt == maxAttempts-1 {
			h.logError("attempt %d of %d failed, giving up: %v", attempt+1, maxAttempts, err)
			return zero, attempt + 1, unwrapPermanent(err)
		}

		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			h.logError("attempt %d of %d failed, not retrying: %v", attempt+1, maxAttempts, err)
			return zero, attempt + 1, unwrapPermanent(err)
		}
		h.logInfo("attempt %d of %d failed, retrying in %s: %v", attempt+1, maxAttempts, decision.Delay, err)

		if decision.Delay > 0 {
			timer := time.NewTimer(decision.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, attempt + 1, fmt.Errorf("retry interrupted after attempt %d: %w: %w", attempt+1, ctx.Err(), unwrapPermanent(err))
			case <-timer.C:
			}
		}
	}

	return zero, maxAttempts, err
}

func (h *Handler) logInfo(format string, args ...any) {
	if h.logger != nil {
		h.logger.Info(format, args...)
	}
}

func (h *Handler) logError(format string, args ...any) {
	if h.logger != nil {
		h.logger.Error(format, args...)
	}
}
