// Package cargo reads what the Rust toolchain reports: the
// `--message-format=json` stream of cargo check/build and Cargo.toml
// manifests.
package cargo

import (
	"bufio"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"nubridge/internal/source"
)

// ReasonCompilerMessage tags the stream lines that carry diagnostics.
const ReasonCompilerMessage = "compiler-message"

// Level is the rustc diagnostic level.
type Level string

const (
	LevelError       Level = "error"
	LevelWarning     Level = "warning"
	LevelNote        Level = "note"
	LevelHelp        Level = "help"
	LevelFailureNote Level = "failure-note"
	LevelICE         Level = "error: internal compiler error"
)

// Code is the optional diagnostic code, e.g. E0308.
type Code struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// Span is one location attached to a rustc diagnostic. Lines and columns
// are 1-based.
type Span struct {
	FileName             string  `json:"file_name"`
	LineStart            uint32  `json:"line_start"`
	LineEnd              uint32  `json:"line_end"`
	ColumnStart          uint32  `json:"column_start"`
	ColumnEnd            uint32  `json:"column_end"`
	IsPrimary            bool    `json:"is_primary"`
	Label                *string `json:"label"`
	SuggestedReplacement *string `json:"suggested_replacement"`
}

// Message is a rustc diagnostic as embedded in a compiler-message line.
type Message struct {
	Message  string    `json:"message"`
	Code     *Code     `json:"code"`
	Level    Level     `json:"level"`
	Spans    []Span    `json:"spans"`
	Children []Message `json:"children"`
	Rendered string    `json:"rendered,omitempty"`
}

// Primary returns the first primary span, if any.
func (m *Message) Primary() (Span, bool) {
	for _, s := range m.Spans {
		if s.IsPrimary {
			return s, true
		}
	}
	return Span{}, false
}

// SpanInFile returns the span a child message should be anchored at: its
// primary span in file when present, else its first span in file.
func (m *Message) SpanInFile(file string) (Span, bool) {
	var first *Span
	for i := range m.Spans {
		s := &m.Spans[i]
		if !source.SamePath(s.FileName, file) {
			continue
		}
		if s.IsPrimary {
			return *s, true
		}
		if first == nil {
			first = s
		}
	}
	if first != nil {
		return *first, true
	}
	return Span{}, false
}

// Touches reports whether any span of the message references file.
func (m *Message) Touches(file string) bool {
	for _, s := range m.Spans {
		if source.SamePath(s.FileName, file) {
			return true
		}
	}
	return false
}

// CodeString returns the diagnostic code or "".
func (m *Message) CodeString() string {
	if m.Code == nil {
		return ""
	}
	return m.Code.Code
}

// ToSpan converts to the shared span model.
func (s Span) ToSpan() source.Span {
	out := source.Span{
		File:      s.FileName,
		LineStart: s.LineStart,
		ColStart:  s.ColumnStart,
		LineEnd:   s.LineEnd,
		ColEnd:    s.ColumnEnd,
		Primary:   s.IsPrimary,
	}
	if s.Label != nil {
		out.Label = *s.Label
	}
	return out
}

// Report is the outcome of parsing one checker run.
type Report struct {
	Errors   []Message
	Warnings []Message
	Notes    []Message
	// Artifacts lists executables announced by compiler-artifact lines.
	Artifacts []string
	// Success is the build-finished verdict when present, otherwise
	// len(Errors) == 0.
	Success bool
}

// All returns every diagnostic in report order: errors, warnings, notes.
func (r *Report) All() []Message {
	out := make([]Message, 0, len(r.Errors)+len(r.Warnings)+len(r.Notes))
	out = append(out, r.Errors...)
	out = append(out, r.Warnings...)
	return append(out, r.Notes...)
}

// Filter keeps only messages with at least one span in file.
func (r *Report) Filter(file string) *Report {
	keep := func(in []Message) []Message {
		var out []Message
		for i := range in {
			if in[i].Touches(file) {
				out = append(out, in[i])
			}
		}
		return out
	}
	return &Report{
		Errors:    keep(r.Errors),
		Warnings:  keep(r.Warnings),
		Notes:     keep(r.Notes),
		Artifacts: r.Artifacts,
		Success:   r.Success,
	}
}

// ParseStream reads a newline-delimited JSON stream. Lines that are not
// JSON, or whose reason is not compiler-message, are skipped. Relative span
// file names are resolved against root when root is set.
func ParseStream(r io.Reader, root string) (*Report, error) {
	rep := &Report{}
	finished, finishedOK := false, false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		switch gjson.GetBytes(line, "reason").String() {
		case ReasonCompilerMessage:
			raw := gjson.GetBytes(line, "message")
			if !raw.IsObject() {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Raw), &msg); err != nil {
				continue
			}
			if root != "" {
				resolveSpans(&msg, root)
			}
			switch msg.Level {
			case LevelError, LevelICE:
				rep.Errors = append(rep.Errors, msg)
			case LevelWarning:
				rep.Warnings = append(rep.Warnings, msg)
			case LevelNote, LevelHelp:
				rep.Notes = append(rep.Notes, msg)
			}
		case "compiler-artifact":
			if exe := gjson.GetBytes(line, "executable"); exe.Type == gjson.String {
				rep.Artifacts = append(rep.Artifacts, exe.String())
			}
		case "build-finished":
			finished = true
			finishedOK = gjson.GetBytes(line, "success").Bool()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	rep.Success = len(rep.Errors) == 0
	if finished {
		rep.Success = finishedOK && rep.Success
	}
	return rep, nil
}

func resolveSpans(m *Message, root string) {
	for i := range m.Spans {
		name := m.Spans[i].FileName
		if name != "" && !filepath.IsAbs(name) && !strings.HasPrefix(name, "<") {
			m.Spans[i].FileName = filepath.Join(root, filepath.FromSlash(name))
		}
	}
	for i := range m.Children {
		resolveSpans(&m.Children[i], root)
	}
}
