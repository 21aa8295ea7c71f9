package nodeflow

import (
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeStartMissing     = "FLOW_START_MISSING"
	ErrCodeContextCancelled = "FLOW_CONTEXT_CANCELLED"
	ErrCodeMaxSteps         = "FLOW_MAX_STEPS_EXCEEDED"
	ErrCodePanicRecovered   = "PANIC_RECOVERED"
	ErrCodeGraphInvalid     = "GRAPH_INVALID"
	ErrCodeNodeNotFound     = "GRAPH_NODE_NOT_FOUND"
	ErrCodeRegistryConflict = "REGISTRY_CONFLICT"
)

var (
	ErrStartMissing = errors.New("flow has no start unit", errors.CategoryBadInput).
			WithTextCode(ErrCodeStartMissing)
	ErrContextCancelled = errors.New("context canceled or deadline exceeded", errors.CategoryExternal).
				WithTextCode(ErrCodeContextCancelled)
	ErrMaxSteps = errors.New("flow exceeded its step limit", errors.CategoryConflict).
			WithTextCode(ErrCodeMaxSteps)
	ErrPanicRecovered = errors.New("panic recovered", errors.CategoryHandler).
				WithTextCode(ErrCodePanicRecovered)
	ErrGraphInvalid = errors.New("graph definition invalid", errors.CategoryValidation).
			WithTextCode(ErrCodeGraphInvalid)
	ErrNodeNotFound = errors.New("graph reference not found", errors.CategoryBadInput).
			WithTextCode(ErrCodeNodeNotFound)
	ErrRegistryConflict = errors.New("already registered", errors.CategoryConflict).
				WithTextCode(ErrCodeRegistryConflict)
)

// NewError clones one of the sentinel errors above with a specific message,
// source and metadata, keeping its category and text code.
func NewError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
	if base == nil {
		base = ErrGraphInvalid
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of a go-errors error in err's chain.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
