package breakpoints

import (
	"fmt"
	"strconv"
	"strings"
)

// Breakpoint is a line breakpoint in either view. Line and Col are 1-based;
// Col 0 marks a whole-line breakpoint.
type Breakpoint struct {
	ID           int    `json:"id,omitempty"`
	Path         string `json:"path"`
	Line         uint32 `json:"line"`
	Col          uint32 `json:"column,omitempty"`
	Enabled      bool   `json:"enabled"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

// Summary returns a string representation of the breakpoint.
func (bp Breakpoint) Summary() string {
	if bp.ID > 0 {
		return fmt.Sprintf("#%d %s:%d", bp.ID, bp.Path, bp.Line)
	}
	return fmt.Sprintf("%s:%d", bp.Path, bp.Line)
}

// Pair links a source breakpoint to the target breakpoint mirroring it.
type Pair struct {
	Source Breakpoint `json:"source"`
	Target Breakpoint `json:"target"`
}

// Changed is the payload of breakpoints.changed, as editors report it.
type Changed struct {
	Added   []Breakpoint `json:"added"`
	Removed []Breakpoint `json:"removed"`
	Changed []Breakpoint `json:"changed"`
}

// Snapshot carries every registered source breakpoint; it is published with
// debug.session.started.
type Snapshot struct {
	SessionID   string
	Breakpoints []Breakpoint
}

// ParseFileLineSpec parses a file:line breakpoint specification.
func ParseFileLineSpec(spec string) (file string, line uint32, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", 0, fmt.Errorf("empty spec")
	}

	colon := strings.LastIndex(spec, ":")
	if colon <= 0 || colon >= len(spec)-1 {
		return "", 0, fmt.Errorf("expected <file:line>, got %q", spec)
	}
	file = spec[:colon]
	lineStr := spec[colon+1:]
	n, err := strconv.ParseUint(lineStr, 10, 32)
	if err != nil || n == 0 {
		return "", 0, fmt.Errorf("invalid line %q", lineStr)
	}
	return file, uint32(n), nil
}
