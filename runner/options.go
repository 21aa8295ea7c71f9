package runner

import "time"

type Option func(*Handler)

// WithMaxAttempts sets the total number of Exec attempts, including the
// first one. Values below 1 are treated as 1.
func WithMaxAttempts(n int) Option {
	return func(h *Handler) {
		if n < 1 {
			n = 1
		}
		h.maxAttempts = n
	}
}

// WithDelay waits d between attempts.
func WithDelay(d time.Duration) Option {
	return func(h *Handler) {
		h.retryStrategy = FixedDelayStrategy{Delay: d}
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(h *Handler) {
		if s == nil {
			s = NoDelayStrategy{}
		}
		h.retryStrategy = s
	}
}

// WithErrorHandler is called after every failed attempt.
func WithErrorHandler(fn func(attempt int, err error)) Option {
	return func(h *Handler) {
		h.errorHandler = fn
	}
}

func WithLogger(l Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}
