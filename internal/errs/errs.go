// Package errs holds the error taxonomy shared by the compile pipeline,
// the position map index and the editor server.
//
// Every failure surfaced to a user falls into one of five kinds:
//
//   - ErrToolMissing: an external executable could not be located.
//   - ErrConversionFailed: the translator exited non-zero or wrote to stderr.
//   - ErrCheckFailed: the checker reported error-level diagnostics.
//   - ErrMappingUnavailable: no position map, or a lookup miss.
//   - ErrAlreadyInProgress: a compile for the same file is still running.
//
// Callers classify with errors.Is; typed errors below carry the details.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrToolMissing        = errors.New("tool missing")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrCheckFailed        = errors.New("check failed")
	ErrMappingUnavailable = errors.New("mapping unavailable")
	ErrAlreadyInProgress  = errors.New("already in progress")
)

// ToolMissingError names the executable that could not be found and every
// candidate that was tried.
type ToolMissingError struct {
	Tool  string
	Tried []string
}

func (e *ToolMissingError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("%s not found", e.Tool)
	}
	return fmt.Sprintf("%s not found (tried %s)", e.Tool, strings.Join(e.Tried, ", "))
}

// Is matches ErrToolMissing.
func (e *ToolMissingError) Is(target error) bool {
	return target == ErrToolMissing
}

// CommandError records a failed external command with its captured output.
// Kind selects the sentinel it matches (ErrConversionFailed by default).
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Kind     error
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("%s: %s", e.Name, msg)
}

// Is matches the sentinel named by Kind.
func (e *CommandError) Is(target error) bool {
	kind := e.Kind
	if kind == nil {
		kind = ErrConversionFailed
	}
	return target == kind
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Kind returns a short stable name of the error class, used in logs and
// JSON output. Unclassified errors yield "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrToolMissing):
		return "tool-missing"
	case errors.Is(err, ErrAlreadyInProgress):
		return "already-in-progress"
	case errors.Is(err, ErrConversionFailed):
		return "conversion-failed"
	case errors.Is(err, ErrCheckFailed):
		return "check-failed"
	case errors.Is(err, ErrMappingUnavailable):
		return "mapping-unavailable"
	default:
		return "internal"
	}
}

// Fatal reports whether err stops the requested operation. Mapping misses
// and in-progress rejections only degrade it.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrMappingUnavailable) && !errors.Is(err, ErrAlreadyInProgress)
}
