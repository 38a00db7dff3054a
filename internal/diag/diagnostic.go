package diag

import (
	"nubridge/internal/source"
)

// Related is a secondary location attached to a diagnostic.
type Related struct {
	Span source.Span
	Msg  string
}

// Diagnostic is a finding expressed in one file's coordinates (1-based).
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Source   string // producer tag shown by editors, e.g. "nu-lang"
	Primary  source.Span
	Related  []Related
}

// New creates a diagnostic without related locations.
func New(sev Severity, code string, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
		Primary:  primary,
	}
}

// WithRelated returns a copy with one more related location.
func (d Diagnostic) WithRelated(sp source.Span, msg string) Diagnostic {
	d.Related = append(append([]Related(nil), d.Related...), Related{Span: sp, Msg: msg})
	return d
}
