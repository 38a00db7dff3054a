package lsp

import (
	"strings"
	"unicode/utf16"
)

// applyChanges applies didChange edits in order. A change without a range
// replaces the whole text.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := byteOffset(text, change.Range.Start)
		end := max(byteOffset(text, change.Range.End), start)
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// byteOffset converts an editor position (UTF-16 columns) into a byte
// offset. Positions past a line end clamp to the line end; lines past the
// end of text clamp to len(text).
func byteOffset(text string, pos position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	off := 0
	for range pos.Line {
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			return len(text)
		}
		off += nl + 1
	}
	units := 0
	for i, r := range text[off:] {
		if r == '\n' || units >= pos.Character {
			return off + i
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > pos.Character {
			return off + i
		}
		units += n
	}
	return len(text)
}

// endOfText returns the position just past the last character of text,
// counting columns in UTF-16 units.
func endOfText(text string) position {
	line := strings.Count(text, "\n")
	last := text[strings.LastIndexByte(text, '\n')+1:]
	units := 0
	for _, r := range last {
		if n := utf16.RuneLen(r); n > 0 {
			units += n
		} else {
			units++
		}
	}
	return position{Line: line, Character: units}
}
