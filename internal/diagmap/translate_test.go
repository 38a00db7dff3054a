package diagmap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nubridge/internal/cargo"
	"nubridge/internal/diag"
	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
)

// lineLookup maps exact target lines only.
type lineLookup struct {
	lines   map[uint32]source.Pos
	queries []string
}

func (l *lineLookup) MapBackward(mapPath string, line, col uint32) (sourcemap.Mapping, bool) {
	l.queries = append(l.queries, mapPath)
	p, ok := l.lines[line]
	if !ok {
		return sourcemap.Mapping{}, false
	}
	return sourcemap.Mapping{Source: p, Target: source.Pos{Line: line, Col: col}}, true
}

func str(s string) *string { return &s }

func primary(file string, line, colStart, colEnd uint32) cargo.Span {
	return cargo.Span{FileName: file, LineStart: line, LineEnd: line, ColumnStart: colStart, ColumnEnd: colEnd, IsPrimary: true}
}

const (
	nuFile = "/w/src/main.nu"
	rsFile = "/w/src/main.rs"
)

func TestTranslateDropsUnmappedPrimary(t *testing.T) {
	lk := &lineLookup{lines: map[uint32]source.Pos{5: {Line: 3, Col: 2}}}
	msgs := []cargo.Message{
		{Message: "bad", Level: cargo.LevelError, Spans: []cargo.Span{primary(rsFile, 5, 9, 14)}},
		{Message: "meh", Level: cargo.LevelWarning, Spans: []cargo.Span{primary(rsFile, 8, 1, 2)}},
	}

	got := New(lk).Translate(nuFile, rsFile, msgs)
	require.Len(t, got, 1)
	d := got[0]
	assert.Equal(t, diag.SevError, d.Severity)
	assert.Equal(t, nuFile, d.Primary.File)
	assert.Equal(t, uint32(3), d.Primary.LineStart)
	assert.Equal(t, uint32(2), d.Primary.ColStart)
	// width 14-9 carried over onto the mapped start
	assert.Equal(t, uint32(7), d.Primary.ColEnd)
	assert.Equal(t, uint32(3), d.Primary.LineEnd)
	assert.Equal(t, DefaultSource, d.Source)
	assert.Equal(t, source.MapPath(rsFile), lk.queries[0])
}

func TestTranslateFiltersOtherFiles(t *testing.T) {
	lk := &lineLookup{lines: map[uint32]source.Pos{1: {Line: 1, Col: 1}}}
	msgs := []cargo.Message{
		{Message: "elsewhere", Level: cargo.LevelError, Spans: []cargo.Span{primary("/w/src/lib.rs", 1, 1, 2)}},
		// touches the target only through a secondary span
		{Message: "macro", Level: cargo.LevelError, Spans: []cargo.Span{
			primary("/w/src/lib.rs", 1, 1, 2),
			{FileName: rsFile, LineStart: 1, LineEnd: 1, ColumnStart: 1, ColumnEnd: 3},
		}},
		{Message: "here", Level: cargo.LevelWarning, Spans: []cargo.Span{primary("/w/src/./main.rs", 1, 1, 2)}},
	}
	got := New(lk).Translate(nuFile, rsFile, msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "here", got[0].Message)
	assert.Equal(t, diag.SevWarning, got[0].Severity)
}

func TestTranslateRelatedChildren(t *testing.T) {
	lk := &lineLookup{lines: map[uint32]source.Pos{
		10: {Line: 4, Col: 5},
		7:  {Line: 2, Col: 1},
	}}
	msg := cargo.Message{
		Message: "mismatched types",
		Code:    &cargo.Code{Code: "E0308"},
		Level:   cargo.LevelError,
		Spans:   []cargo.Span{{FileName: rsFile, LineStart: 10, LineEnd: 10, ColumnStart: 3, ColumnEnd: 6, IsPrimary: true, Label: str("expected i32")}},
		Children: []cargo.Message{
			{Message: "expected due to this", Level: cargo.LevelNote, Spans: []cargo.Span{primary(rsFile, 7, 1, 4)}},
			{Message: "unmapped child", Level: cargo.LevelNote, Spans: []cargo.Span{primary(rsFile, 99, 1, 4)}},
			{Message: "try this", Level: cargo.LevelHelp},
			{Message: "spanless error child", Level: cargo.LevelError},
		},
	}

	got := New(lk, WithSource("test")).Translate(nuFile, rsFile, []cargo.Message{msg})
	require.Len(t, got, 1)
	d := got[0]
	assert.Equal(t, "E0308", d.Code)
	assert.Equal(t, "test", d.Source)
	require.Len(t, d.Related, 1, "unmapped and spanless children are omitted")
	assert.Equal(t, "expected due to this", d.Related[0].Msg)
	assert.Equal(t, uint32(2), d.Related[0].Span.LineStart)
	assert.Equal(t, nuFile, d.Related[0].Span.File)

	lines := strings.Split(d.Message, "\n")
	assert.Equal(t, []string{
		"mismatched types",
		"expected i32",
		"note: expected due to this",
		"note: unmapped child",
		"help: try this",
	}, lines)
}

func TestTranslateSeverityMapping(t *testing.T) {
	lk := &lineLookup{lines: map[uint32]source.Pos{1: {Line: 1, Col: 1}}}
	levels := map[cargo.Level]diag.Severity{
		cargo.LevelError:   diag.SevError,
		cargo.LevelWarning: diag.SevWarning,
		cargo.LevelNote:    diag.SevInfo,
		cargo.LevelHelp:    diag.SevHint,
		"mystery":          diag.SevError,
	}
	for lvl, want := range levels {
		got := New(lk).Translate(nuFile, rsFile, []cargo.Message{{Message: "x", Level: lvl, Spans: []cargo.Span{primary(rsFile, 1, 1, 1)}}})
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0].Severity, "level %s", lvl)
	}
}

func TestTranslateReportWithRealMap(t *testing.T) {
	dir := t.TempDir()
	rs := filepath.Join(dir, "main.rs")
	nu := filepath.Join(dir, "main.nu")
	mapJSON := `{"version":1,"file":"main.rs","mappings":[
		{"nu_line":1,"nu_column":1,"rs_line":2,"rs_column":1},
		{"nu_line":3,"nu_column":5,"rs_line":5,"rs_column":1}
	]}`
	require.NoError(t, os.WriteFile(source.MapPath(rs), []byte(mapJSON), 0o600))

	ix, err := sourcemap.NewIndex(sourcemap.Options{})
	require.NoError(t, err)

	rep := &cargo.Report{
		Errors:   []cargo.Message{{Message: "e", Level: cargo.LevelError, Spans: []cargo.Span{primary(rs, 6, 4, 8)}}},
		Warnings: []cargo.Message{{Message: "w", Level: cargo.LevelWarning, Spans: []cargo.Span{primary(rs, 1, 1, 2)}}},
	}
	bag := New(ix).TranslateReport(nu, rs, rep, 0)
	require.Equal(t, 1, bag.Len(), "warning before the first mapped line is dropped")
	d := bag.Items()[0]
	assert.Equal(t, uint32(3), d.Primary.LineStart)
	assert.Equal(t, uint32(5), d.Primary.ColStart)
	assert.Equal(t, uint32(9), d.Primary.ColEnd)

	empty := New(ix).TranslateReport(nu, rs, nil, 0)
	assert.Equal(t, 0, empty.Len())
}

func TestTranslateAbsentColumnClamps(t *testing.T) {
	lk := &lineLookup{lines: map[uint32]source.Pos{3: {Line: 0, Col: 0}}}
	got := New(lk).Translate(nuFile, rsFile, []cargo.Message{{Message: "x", Level: cargo.LevelError, Spans: []cargo.Span{primary(rsFile, 3, 2, 5)}}})
	require.Len(t, got, 1)
	assert.Equal(t, source.Pos{Line: 1, Col: 1}, got[0].Primary.Start())
	assert.Equal(t, uint32(4), got[0].Primary.ColEnd)
}

func TestTranslateReportDedupsAndLimits(t *testing.T) {
	lk := &lineLookup{lines: map[uint32]source.Pos{5: {Line: 3, Col: 2}, 6: {Line: 4, Col: 1}}}
	unused := cargo.Message{Message: "unused variable", Level: cargo.LevelWarning, Spans: []cargo.Span{primary(rsFile, 5, 9, 10)}}
	rep := &cargo.Report{
		// reported once for the lib target and once for the bin target
		Warnings: []cargo.Message{unused, unused, {Message: "dead code", Level: cargo.LevelWarning, Spans: []cargo.Span{primary(rsFile, 6, 1, 4)}}},
	}

	bag := New(lk).TranslateReport(nuFile, rsFile, rep, 0)
	require.Equal(t, 2, bag.Len())

	limited := New(lk).TranslateReport(nuFile, rsFile, rep, 1)
	require.Equal(t, 1, limited.Len())
	assert.True(t, strings.HasPrefix(limited.Items()[0].Message, "unused variable"))
}
