package source

import "fmt"

// Pos is a line/column position. Stored positions are 1-based; editor
// protocols speak 0-based and must go through FromZero/ToZero.
type Pos struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}

// FromZero converts a 0-based editor position into a stored 1-based one.
func FromZero(line, col uint32) Pos {
	return Pos{Line: line + 1, Col: col + 1}
}

// ToZero returns the 0-based editor representation. Zero components
// (absent in the map file) clamp to 0 instead of wrapping.
func (p Pos) ToZero() (line, col uint32) {
	if p.Line > 0 {
		line = p.Line - 1
	}
	if p.Col > 0 {
		col = p.Col - 1
	}
	return line, col
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Location pins a position to a file.
type Location struct {
	Path string
	Pos  Pos
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%s", l.Path, l.Pos)
}

// Span is a 1-based line/column range inside one file, inclusive start and
// exclusive end column, as reported by rustc.
type Span struct {
	File      string
	LineStart uint32
	ColStart  uint32
	LineEnd   uint32
	ColEnd    uint32
	Primary   bool
	Label     string
}

// Start returns the first position of the span.
func (s Span) Start() Pos {
	return Pos{Line: s.LineStart, Col: s.ColStart}
}

// End returns the end position of the span.
func (s Span) End() Pos {
	return Pos{Line: s.LineEnd, Col: s.ColEnd}
}

// Width is the column extent of the span, 0 when the end precedes the start.
func (s Span) Width() uint32 {
	if s.ColEnd < s.ColStart {
		return 0
	}
	return s.ColEnd - s.ColStart
}

// Lines is the number of extra lines the span covers beyond the first.
func (s Span) Lines() uint32 {
	if s.LineEnd < s.LineStart {
		return 0
	}
	return s.LineEnd - s.LineStart
}

// MoveTo rebases the span on a new start position keeping its width and
// line extent.
func (s Span) MoveTo(start Pos) Span {
	width, lines := s.Width(), s.Lines()
	s.LineStart = start.Line
	s.ColStart = start.Col
	s.LineEnd = start.Line + lines
	s.ColEnd = start.Col + width
	return s
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.LineStart, s.ColStart, s.LineEnd, s.ColEnd)
}
