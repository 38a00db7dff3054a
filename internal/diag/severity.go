package diag

import "strings"

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevHint is for rustc "help" children promoted to diagnostics.
	SevHint Severity = iota
	// SevInfo is for notes.
	SevInfo
	// SevWarning is for warning diagnostics.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevHint:
		return "HINT"
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel maps a rustc level string onto a Severity. Unknown levels are
// treated as errors so nothing the compiler rejects is silently downgraded.
func ParseLevel(level string) Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		return SevError
	case "warning":
		return SevWarning
	case "note":
		return SevInfo
	case "help":
		return SevHint
	default:
		return SevError
	}
}

// LSP returns the protocol DiagnosticSeverity (1 = error .. 4 = hint).
func (s Severity) LSP() int {
	switch s {
	case SevError:
		return 1
	case SevWarning:
		return 2
	case SevInfo:
		return 3
	default:
		return 4
	}
}
