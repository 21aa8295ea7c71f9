package nodeflow

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
)

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

func MakePanicHandler(logger PanicLogger) func(funcName string, fields ...map[string]any) {
	return func(funcName string, fields ...map[string]any) {
		if err := recover(); err != nil {
			logger(funcName, err, stackTrace(), fields...)
		}
	}
}

// CapturePanic recovers a panic and stores it in errp as an
// ErrPanicRecovered error carrying the cleaned stack. It must be deferred
// directly by the goroutine that may panic.
func CapturePanic(funcName string, errp *error) {
	r := recover()
	if r == nil || errp == nil {
		return
	}
	var source error
	if e, ok := r.(error); ok {
		source = e
	}
	*errp = NewError(ErrPanicRecovered, fmt.Sprintf("panic in %s: %v", funcName, r), source, map[string]any{
		"function": funcName,
		"stack":    string(stackTrace()),
	})
}

func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[FATAL] recovered from panic in %s\n", funcName))
	sb.WriteString(fmt.Sprintf("Error: %v\n", err))
	sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")

		// sort keys for consistent output
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
		}
	}

	sb.WriteString("Stack Trace:\n")
	sb.Write(stack)

	log.Print(sb.String())
}

func stackTrace() []byte {
	full := make([]byte, 8096)
	n := runtime.Stack(full, false)
	return cleanStackTrace(full[:n])
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	// drop everything up to and including the panic() frame
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
