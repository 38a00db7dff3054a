// Package diagmap moves rustc diagnostics reported against a generated .rs
// file back onto the .nu source it was translated from.
package diagmap

import (
	"strings"

	"nubridge/internal/cargo"
	"nubridge/internal/diag"
	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
	"nubridge/internal/trace"
)

// DefaultSource tags translated diagnostics for editors.
const DefaultSource = "nu-lang"

// Lookup resolves target positions to source positions.
type Lookup interface {
	MapBackward(mapPath string, line, col uint32) (sourcemap.Mapping, bool)
}

// Translator converts checker messages into source coordinates.
type Translator struct {
	maps   Lookup
	source string
	tracer trace.Tracer
}

// Option configures a Translator.
type Option func(*Translator)

// WithSource overrides the producer tag.
func WithSource(tag string) Option {
	return func(t *Translator) { t.source = tag }
}

// WithTracer attaches a tracer for dropped-item reporting.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Translator) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// New creates a Translator backed by maps.
func New(maps Lookup, opts ...Option) *Translator {
	t := &Translator{maps: maps, source: DefaultSource, tracer: trace.Nop}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate keeps the messages that reference targetPath and maps each
// through the position map of targetPath. Only the primary span is looked
// up; its extent is carried over unchanged. Messages whose primary span does
// not map are dropped, and so are related locations that do not map. The
// result order follows msgs but callers must not rely on it.
func (t *Translator) Translate(sourcePath, targetPath string, msgs []cargo.Message) []diag.Diagnostic {
	mapPath := source.MapPath(targetPath)
	out := make([]diag.Diagnostic, 0, len(msgs))

	for i := range msgs {
		m := &msgs[i]
		if !m.Touches(targetPath) {
			continue
		}
		primary, ok := primaryIn(m, targetPath)
		if !ok {
			t.dropped(m, "no primary span in target")
			continue
		}
		hit, ok := t.maps.MapBackward(mapPath, primary.LineStart, primary.ColumnStart)
		if !ok {
			t.dropped(m, "primary span unmapped")
			continue
		}

		span := primary.ToSpan().MoveTo(clamp(hit.Source))
		span.File = sourcePath
		d := diag.Diagnostic{
			Severity: diag.ParseLevel(string(m.Level)),
			Code:     m.CodeString(),
			Message:  FormatMessage(m),
			Source:   t.source,
			Primary:  span,
		}
		d.Related = t.related(m, sourcePath, targetPath, mapPath)
		out = append(out, d)
	}
	return out
}

// TranslateReport runs Translate over every message of rep into a bag of
// at most max diagnostics, dropping duplicates.
func (t *Translator) TranslateReport(sourcePath, targetPath string, rep *cargo.Report, max int) *diag.Bag {
	bag := diag.NewBag(max)
	if rep == nil {
		return bag
	}
	all := diag.NewBag(0)
	for _, d := range t.Translate(sourcePath, targetPath, rep.All()) {
		all.Add(d)
	}
	all.Dedup()
	for _, d := range all.Items() {
		if !bag.Add(d) {
			break
		}
	}
	return bag
}

func (t *Translator) related(m *cargo.Message, sourcePath, targetPath, mapPath string) []diag.Related {
	var out []diag.Related
	for i := range m.Children {
		child := &m.Children[i]
		sp, ok := child.SpanInFile(targetPath)
		if !ok {
			continue
		}
		hit, ok := t.maps.MapBackward(mapPath, sp.LineStart, sp.ColumnStart)
		if !ok {
			continue
		}
		rel := sp.ToSpan().MoveTo(clamp(hit.Source))
		rel.File = sourcePath
		out = append(out, diag.Related{Span: rel, Msg: childMessage(child)})
	}
	return out
}

func (t *Translator) dropped(m *cargo.Message, why string) {
	trace.Point(t.tracer, trace.ScopeItem, "diag", "drop", why, "message", firstLine(m.Message))
}

// primaryIn returns the primary span of m located in file. rustc may put
// the primary span in another file (a macro or a dependency); such messages
// have nothing to anchor at in this file.
func primaryIn(m *cargo.Message, file string) (cargo.Span, bool) {
	for _, s := range m.Spans {
		if s.IsPrimary && source.SamePath(s.FileName, file) {
			return s, true
		}
	}
	return cargo.Span{}, false
}

// FormatMessage renders the editor-facing text: the message, the primary
// span label, then one "level: message" line per note, warning or help
// child.
func FormatMessage(m *cargo.Message) string {
	var sb strings.Builder
	sb.WriteString(m.Message)
	if p, ok := m.Primary(); ok && p.Label != nil && *p.Label != "" {
		sb.WriteString("\n" + *p.Label)
	}
	for i := range m.Children {
		c := &m.Children[i]
		switch c.Level {
		case cargo.LevelNote, cargo.LevelWarning, cargo.LevelHelp:
			sb.WriteString("\n" + string(c.Level) + ": " + c.Message)
		}
	}
	return sb.String()
}

func childMessage(c *cargo.Message) string {
	if p, ok := c.Primary(); ok && p.Label != nil && *p.Label != "" && c.Message == "" {
		return *p.Label
	}
	return c.Message
}

// clamp lifts absent (0) map fields to the first line/column.
func clamp(p source.Pos) source.Pos {
	if p.Line == 0 {
		p.Line = 1
	}
	if p.Col == 0 {
		p.Col = 1
	}
	return p
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
