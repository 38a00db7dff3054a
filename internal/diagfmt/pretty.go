package diagfmt

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"nubridge/internal/diag"
	"nubridge/internal/source"
)

// Pretty prints diagnostics in a compiler-style layout:
//
//	<path>:<line>:<col>: <SEV> <CODE>: <Message>
//	   3 | let x = foo(1)
//	     |         ^~~~
//	  note: <path>:<line>:<col>: <related message>
//
// Items are printed in bag order; call bag.Sort() first for stable output.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	if bag == nil {
		return nil
	}
	p := newPainter(opts.Color)
	read := opts.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	lines := make(map[string][][]byte)
	lineOf := func(path string, n uint32) ([]byte, bool) {
		src, ok := lines[path]
		if !ok {
			data, err := read(path)
			if err == nil {
				src = bytes.Split(data, []byte("\n"))
			}
			lines[path] = src
		}
		if n == 0 || int(n) > len(src) {
			return nil, false
		}
		return bytes.TrimRight(src[n-1], "\r"), true
	}

	for _, d := range bag.Items() {
		var sb strings.Builder
		sb.WriteString(p.path.Sprintf("%s:%d:%d:", displayPath(d.Primary.File, opts.PathMode, opts.BaseDir), d.Primary.LineStart, d.Primary.ColStart))
		sb.WriteByte(' ')
		sb.WriteString(p.severity(d.Severity).Sprint(d.Severity.String()))
		if d.Code != "" {
			sb.WriteString(" " + p.code.Sprint(d.Code))
		}
		first, rest, _ := strings.Cut(d.Message, "\n")
		sb.WriteString(": " + first + "\n")
		for _, extra := range strings.Split(rest, "\n") {
			if extra != "" {
				sb.WriteString("    " + extra + "\n")
			}
		}

		if opts.Context {
			if text, ok := lineOf(d.Primary.File, d.Primary.LineStart); ok {
				writeContext(&sb, p, d.Primary, string(text))
			}
		}
		if opts.Related {
			for _, r := range d.Related {
				fmt.Fprintf(&sb, "  %s %s:%d:%d: %s\n", p.note.Sprint("note:"),
					displayPath(r.Span.File, opts.PathMode, opts.BaseDir), r.Span.LineStart, r.Span.ColStart, r.Msg)
			}
		}
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

func writeContext(sb *strings.Builder, p painter, sp source.Span, text string) {
	gutter := fmt.Sprintf("%4d | ", sp.LineStart)
	sb.WriteString(p.gutter.Sprint(gutter) + text + "\n")

	col := int(sp.ColStart)
	if col < 1 {
		col = 1
	}
	width := int(sp.Width())
	if sp.LineEnd != sp.LineStart || width < 1 {
		width = 1
	}
	pad := strings.Repeat(" ", len(gutter)-2)
	marker := "^" + strings.Repeat("~", width-1)
	sb.WriteString(p.gutter.Sprint(pad+"| ") + strings.Repeat(" ", col-1) + p.caret.Sprint(marker) + "\n")
}

func displayPath(path string, mode PathMode, base string) string {
	switch mode {
	case PathModeAbsolute:
		return filepath.ToSlash(source.Canonical(path))
	case PathModeBasename:
		return filepath.Base(path)
	case PathModeRelative, PathModeAuto:
		if base == "" {
			return filepath.ToSlash(path)
		}
		rel, err := source.RelativePath(path, base)
		if err != nil {
			return filepath.ToSlash(path)
		}
		return rel
	}
	return path
}

type painter struct {
	path, code, note, gutter, caret *color.Color
	err, warn, info                 *color.Color
}

func newPainter(enabled bool) painter {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return painter{
		path:   mk(color.Bold),
		code:   mk(color.FgMagenta),
		note:   mk(color.FgCyan, color.Bold),
		gutter: mk(color.FgBlue),
		caret:  mk(color.FgRed, color.Bold),
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan),
	}
}

func (p painter) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}
