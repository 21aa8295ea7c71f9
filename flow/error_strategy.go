package flow

import (
	"errors"
	"strings"

	"github.com/goliatone/go-nodeflow"
)

// ErrorStrategy decides how the parallel variants report item failures.
type ErrorStrategy interface {
	HandleErrors([]error) error
}

// FailFastStrategy returns the first failure as soon as it happens, without
// waiting for the other in-flight items.
type FailFastStrategy struct{}

func (f FailFastStrategy) HandleErrors(errs []error) error {
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// AggregateErrorStrategy waits for every item and joins all failures.
type AggregateErrorStrategy struct{}

func (a AggregateErrorStrategy) HandleErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// ParseErrorStrategy maps a config name to a strategy. The empty name maps
// to fail fast.
func ParseErrorStrategy(name string) (ErrorStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fail_fast", "failfast":
		return FailFastStrategy{}, nil
	case "aggregate":
		return AggregateErrorStrategy{}, nil
	default:
		return nil, nodeflow.NewError(nodeflow.ErrGraphInvalid, "unknown error strategy "+name, nil, map[string]any{
			"error_strategy": name,
		})
	}
}

func isFailFast(strategy ErrorStrategy) bool {
	switch strategy.(type) {
	case nil, FailFastStrategy, *FailFastStrategy:
		return true
	}
	return false
}
