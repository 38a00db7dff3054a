package lsp

import (
	"testing"

	"nubridge/internal/source"
)

func TestPositionConversion(t *testing.T) {
	p := toPos(position{Line: 0, Character: 0})
	if p.Line != 1 || p.Col != 1 {
		t.Fatalf("expected 1:1, got %s", p)
	}
	back := fromPos(source.Pos{Line: 12, Col: 9})
	if back.Line != 11 || back.Character != 8 {
		t.Fatalf("unexpected position: %+v", back)
	}
	if got := toPos(position{Line: -3, Character: -1}); got.Line != 1 || got.Col != 1 {
		t.Fatalf("negative positions must clamp, got %s", got)
	}
}

func TestRangeForSpan(t *testing.T) {
	tests := []struct {
		name string
		span source.Span
		want lspRange
	}{
		{
			name: "regular",
			span: source.Span{LineStart: 2, ColStart: 3, LineEnd: 2, ColEnd: 6},
			want: lspRange{Start: position{Line: 1, Character: 2}, End: position{Line: 1, Character: 5}},
		},
		{
			name: "point",
			span: source.Span{LineStart: 4, ColStart: 1},
			want: lspRange{Start: position{Line: 3}, End: position{Line: 3}},
		},
		{
			name: "inverted",
			span: source.Span{LineStart: 5, ColStart: 7, LineEnd: 5, ColEnd: 2},
			want: lspRange{Start: position{Line: 4, Character: 6}, End: position{Line: 4, Character: 6}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rangeForSpan(tt.span); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWireBreakpointRoundTrip(t *testing.T) {
	ch := 4
	w := wireBreakpoint{URI: pathToURI("/tmp/x/main.nu"), Line: 2, Character: &ch, Enabled: true, LogMessage: "hit"}
	bp := fromWire(w)
	if bp.Line != 3 || bp.Col != 5 || bp.LogMessage != "hit" {
		t.Fatalf("unexpected breakpoint: %+v", bp)
	}
	got := toWire(bp)
	if got.Line != 2 || got.Character == nil || *got.Character != 4 || got.URI != w.URI {
		t.Fatalf("unexpected wire breakpoint: %+v", got)
	}
}

func TestEndOfText(t *testing.T) {
	if got := endOfText("ab\ncd"); got != (position{Line: 1, Character: 2}) {
		t.Fatalf("unexpected end: %+v", got)
	}
	if got := endOfText("🙂"); got != (position{Line: 0, Character: 2}) {
		t.Fatalf("surrogate pairs count twice, got %+v", got)
	}
}

func TestApplyChanges(t *testing.T) {
	rng := func(l1, c1, l2, c2 int) *lspRange {
		return &lspRange{Start: position{Line: l1, Character: c1}, End: position{Line: l2, Character: c2}}
	}
	cases := []struct {
		name    string
		text    string
		changes []textDocumentContentChangeEvent
		want    string
	}{
		{"full replace", "old", []textDocumentContentChangeEvent{{Text: "new"}}, "new"},
		{"insert", "let x = 1\n", []textDocumentContentChangeEvent{{Range: rng(0, 4, 0, 5), Text: "count"}}, "let count = 1\n"},
		{"second line", "a\nbc\n", []textDocumentContentChangeEvent{{Range: rng(1, 1, 1, 2), Text: "X"}}, "a\nbX\n"},
		{"utf16 columns", "🙂x", []textDocumentContentChangeEvent{{Range: rng(0, 2, 0, 3), Text: "y"}}, "🙂y"},
		{"past end clamps", "ab", []textDocumentContentChangeEvent{{Range: rng(5, 0, 6, 0), Text: "!"}}, "ab!"},
		{"sequence", "ab", []textDocumentContentChangeEvent{
			{Range: rng(0, 0, 0, 0), Text: "["},
			{Range: rng(0, 3, 0, 3), Text: "]"},
		}, "[ab]"},
	}
	for _, tc := range cases {
		if got := applyChanges(tc.text, tc.changes); got != tc.want {
			t.Fatalf("%s: applyChanges = %q, want %q", tc.name, got, tc.want)
		}
	}
}
