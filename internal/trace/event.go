package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
	// KindError is an instant event that is emitted at LevelError and above.
	KindError
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent higher-level/coarser events.
type Scope uint8

const (
	// ScopeDriver covers CLI commands and server lifecycle.
	ScopeDriver Scope = iota + 1
	// ScopeFile covers per-file work: compile stages, map loads, watcher hits.
	ScopeFile
	// ScopeItem covers single diagnostics, breakpoints and lookups.
	ScopeItem
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopeFile:
		return "file"
	case ScopeItem:
		return "item"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time      time.Time         // wall-clock timestamp
	Seq       uint64            // global sequence number (monotonic)
	Kind      Kind              // event kind
	Scope     Scope             // granularity level
	Component string            // emitting subsystem: compile, map, lsp, ...
	SpanID    uint64            // unique span identifier
	ParentID  uint64            // parent span (0 if root)
	Name      string            // e.g. "translate", "load", "breakpoint.add"
	Detail    string            // optional detail message
	Extra     map[string]string // extensible key-value pairs
}
