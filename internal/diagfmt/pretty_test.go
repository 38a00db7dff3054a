package diagfmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"nubridge/internal/diag"
	"nubridge/internal/source"
)

func sampleBag() *diag.Bag {
	bag := diag.NewBag(10)
	d := diag.New(diag.SevError, "E0308",
		source.Span{File: "/home/user/proj/src/main.nu", LineStart: 2, ColStart: 9, LineEnd: 2, ColEnd: 13},
		"mismatched types\nexpected i32\nnote: expected due to this")
	d = d.WithRelated(source.Span{File: "/home/user/proj/src/main.nu", LineStart: 1, ColStart: 5}, "expected due to this")
	bag.Add(d)
	return bag
}

func fakeRead(path string) ([]byte, error) {
	if strings.HasSuffix(path, "main.nu") {
		return []byte("fn main() {\n    let x: i32 = \"a\"\n}\n"), nil
	}
	return nil, errors.New("missing")
}

// TestPathModes проверяет различные режимы форматирования путей
func TestPathModes(t *testing.T) {
	tests := []struct {
		name     string
		mode     PathMode
		contains string
	}{
		{"Absolute path", PathModeAbsolute, "/home/user/proj/src/main.nu:2:9:"},
		{"Relative path", PathModeRelative, "src/main.nu:2:9:"},
		{"Basename only", PathModeBasename, "main.nu:2:9:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			opts := PrettyOpts{PathMode: tt.mode, BaseDir: "/home/user/proj", ReadFile: fakeRead}
			if err := Pretty(&buf, sampleBag(), opts); err != nil {
				t.Fatalf("Pretty: %v", err)
			}
			output := buf.String()
			if !strings.Contains(output, tt.contains) {
				t.Errorf("Expected output to contain %q, got:\n%s", tt.contains, output)
			}
			if !strings.Contains(output, "ERROR E0308: mismatched types") {
				t.Errorf("Expected header line, got:\n%s", output)
			}
			if !strings.Contains(output, "    expected i32") {
				t.Errorf("Expected continuation line, got:\n%s", output)
			}
		})
	}
}

func TestPrettyContextAndRelated(t *testing.T) {
	var buf bytes.Buffer
	opts := PrettyOpts{Context: true, Related: true, PathMode: PathModeBasename, ReadFile: fakeRead}
	if err := Pretty(&buf, sampleBag(), opts); err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "   2 |     let x: i32 = \"a\"") {
		t.Errorf("missing context line:\n%s", out)
	}
	if !strings.Contains(out, "     |         ^~~~") {
		t.Errorf("missing caret line:\n%s", out)
	}
	if !strings.Contains(out, "note: main.nu:1:5: expected due to this") {
		t.Errorf("missing related note:\n%s", out)
	}
}

func TestPrettyWithoutSourceSkipsContext(t *testing.T) {
	bag := diag.NewBag(1)
	bag.Add(diag.New(diag.SevWarning, "", source.Span{File: "/nowhere.nu", LineStart: 1, ColStart: 1}, "unused"))
	var buf bytes.Buffer
	if err := Pretty(&buf, bag, PrettyOpts{Context: true, PathMode: PathModeBasename, ReadFile: fakeRead}); err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if strings.Contains(buf.String(), "|") {
		t.Errorf("unexpected context for unreadable file:\n%s", buf.String())
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{PathMode: PathModeRelative, BaseDir: "/home/user/proj"}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 1 || len(out.Diagnostics) != 1 {
		t.Fatalf("unexpected count: %+v", out)
	}
	d := out.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "E0308" || d.Location.File != "src/main.nu" || d.Location.EndCol != 13 {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
	if len(d.Related) != 1 || d.Related[0].Location.StartLine != 1 {
		t.Fatalf("unexpected related: %+v", d.Related)
	}
}

func TestJSONEmptyBag(t *testing.T) {
	out := BuildDiagnosticsOutput(nil, JSONOpts{})
	if out.Diagnostics == nil || out.Count != 0 {
		t.Fatalf("expected empty non-nil list, got %+v", out)
	}
}
