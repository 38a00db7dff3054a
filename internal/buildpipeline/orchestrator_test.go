package buildpipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nubridge/internal/errs"
	"nubridge/internal/event"
	"nubridge/internal/sourcemap"
	"nubridge/internal/toolchain"
)

type fakeTools map[string]string

func (f fakeTools) Find(_ context.Context, tool string) (string, error) {
	if p, ok := f[tool]; ok {
		return p, nil
	}
	return "", &errs.ToolMissingError{Tool: tool}
}

type panicTools struct{}

func (panicTools) Find(context.Context, string) (string, error) { panic("boom") }

const nu2rustScript = `#!/bin/sh
in="$1"; out="$3"
echo "$in" >> "$(dirname "$in")/.calls"
case "$in" in *broken*) echo "syntax error at 1:1" >&2; exit 1;; esac
case "$in" in *noisy*) echo "unsupported construct" >&2; exit 0;; esac
while [ -f "$in.hold" ]; do sleep 0.02; done
printf 'fn main() {\n\n\n\n    let x: i32 = "a";\n}\n' > "$out"
printf '{"version":1,"file":"main.rs","mappings":[{"nu_line":1,"nu_column":1,"rs_line":1,"rs_column":1},{"nu_line":2,"nu_column":3,"rs_line":5,"rs_column":5}]}' > "$out.map"
`

const rustfmtScript = `#!/bin/sh
printf '// formatted\n' >> "$1"
`

const rust2nuScript = `#!/bin/sh
{ echo "# from rust"; cat "$1"; } > "$3"
`

// cargoScript reports what $NUBRIDGE_FAKE_CARGO points at.
const cargoScript = `#!/bin/sh
cat "$NUBRIDGE_FAKE_CARGO"
case "$(cat "$NUBRIDGE_FAKE_CARGO")" in *'"level":"error"'*) exit 101;; esac
`

const cargoError = `{"reason":"compiler-artifact","executable":null}
{"reason":"compiler-message","message":{"message":"mismatched types","code":{"code":"E0308"},"level":"error","spans":[{"file_name":"src/main.rs","line_start":5,"line_end":5,"column_start":18,"column_end":21,"is_primary":true,"label":"expected i32"}],"children":[]}}
{"reason":"build-finished","success":false}
`

const cargoWarning = `{"reason":"compiler-message","message":{"message":"unused variable","code":null,"level":"warning","spans":[{"file_name":"src/main.rs","line_start":5,"line_end":5,"column_start":9,"column_end":10,"is_primary":true}],"children":[]}}
{"reason":"build-finished","success":true}
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755)) // #nosec G306 -- test executable
	return p
}

type fixture struct {
	root  string
	nu    string
	tools fakeTools
	maps  *sourcemap.Index
}

func newFixture(t *testing.T, cargoProject bool) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools")
	}
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(bin, 0o755))
	if cargoProject {
		require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte("[package]\nname = \"demo\"\n"), 0o600))
	}
	nu := filepath.Join(root, "src", "main.nu")
	require.NoError(t, os.WriteFile(nu, []byte("f main() {\n  let x: i32 = \"a\"\n}\n"), 0o600))

	maps, err := sourcemap.NewIndex(sourcemap.Options{})
	require.NoError(t, err)
	return &fixture{
		root: root,
		nu:   nu,
		maps: maps,
		tools: fakeTools{
			toolchain.Nu2Rust: writeScript(t, bin, "nu2rust", nu2rustScript),
			toolchain.Rustfmt: writeScript(t, bin, "rustfmt", rustfmtScript),
			toolchain.Rust2Nu: writeScript(t, bin, "rust2nu", rust2nuScript),
			toolchain.Cargo:   writeScript(t, bin, "cargo", cargoScript),
		},
	}
}

func (f *fixture) cargoOutput(t *testing.T, body string) {
	t.Helper()
	p := filepath.Join(f.root, "cargo.out")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	t.Setenv("NUBRIDGE_FAKE_CARGO", p)
}

func (f *fixture) calls(t *testing.T) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, "src", ".calls"))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestCompileWithoutCheck(t *testing.T) {
	f := newFixture(t, true)
	var completed []bool
	o := New(Options{Tools: f.tools, Maps: f.maps, OnComplete: func(_ context.Context, res Result) { completed = append(completed, res.Success) }})

	res := o.Compile(context.Background(), f.nu)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(f.root, "src", "main.rs"), res.TargetPath)
	assert.Equal(t, filepath.Join(f.root, "src", "main.rs.map"), res.MapPath)
	assert.Nil(t, res.Report)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Timings.Has(StageTranslate))
	assert.Equal(t, []bool{true}, completed)

	rs, err := os.ReadFile(res.TargetPath)
	require.NoError(t, err)
	assert.Contains(t, string(rs), "// formatted")
}

func TestPublishCompletedAnnouncesOnBus(t *testing.T) {
	f := newFixture(t, false)
	broken := filepath.Join(f.root, "src", "broken.nu")
	require.NoError(t, os.WriteFile(broken, []byte("???"), 0o600))

	bus := event.NewBus()
	var got []event.CompileCompleted
	_, err := event.Subscribe(bus, event.TopicCompileCompleted, func(_ context.Context, c event.CompileCompleted) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)

	o := New(Options{Tools: f.tools, Maps: f.maps, OnComplete: PublishCompleted(bus)})
	o.Compile(context.Background(), f.nu)
	o.Compile(context.Background(), broken)

	require.Len(t, got, 2)
	assert.Equal(t, f.nu, got[0].Path)
	assert.True(t, got[0].Success)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, broken, got[1].Path)
	assert.False(t, got[1].Success)
	assert.ErrorIs(t, got[1].Err, errs.ErrConversionFailed)
}

func TestCompileInvalidatesStaleMap(t *testing.T) {
	f := newFixture(t, false)
	mapPath := filepath.Join(f.root, "src", "main.rs.map")
	require.NoError(t, os.WriteFile(mapPath, []byte(`{"mappings":[{"nu_line":9,"nu_column":1,"rs_line":1,"rs_column":1}]}`), 0o600))
	hit, ok := f.maps.MapBackward(mapPath, 1, 1)
	require.True(t, ok)
	require.Equal(t, uint32(9), hit.Source.Line)

	res := New(Options{Tools: f.tools, Maps: f.maps}).Compile(context.Background(), f.nu)
	require.True(t, res.Success)
	assert.False(t, f.maps.Cached(mapPath))

	hit, ok = f.maps.MapBackward(mapPath, 5, 5)
	require.True(t, ok)
	assert.Equal(t, uint32(2), hit.Source.Line)
}

func TestCompileTranslatorFailure(t *testing.T) {
	f := newFixture(t, false)
	broken := filepath.Join(f.root, "src", "broken.nu")
	require.NoError(t, os.WriteFile(broken, []byte("???"), 0o600))

	var events []Event
	var completed []bool
	o := New(Options{
		Tools:      f.tools,
		Maps:       f.maps,
		Progress:   FuncSink(func(e Event) { events = append(events, e) }),
		OnComplete: func(_ context.Context, res Result) { completed = append(completed, res.Success) },
	})
	res := o.Compile(context.Background(), broken)
	assert.False(t, res.Success)
	require.ErrorIs(t, res.Err, errs.ErrConversionFailed)
	assert.Contains(t, res.Err.Error(), "syntax error at 1:1")
	assert.Equal(t, []bool{false}, completed)

	last := events[len(events)-1]
	assert.Equal(t, StageTranslate, last.Stage)
	assert.Equal(t, StatusError, last.Status)
}

func TestCompileTranslatorStderrFails(t *testing.T) {
	f := newFixture(t, false)
	noisy := filepath.Join(f.root, "src", "noisy.nu")
	require.NoError(t, os.WriteFile(noisy, []byte("f x() {}\n"), 0o600))

	res := New(Options{Tools: f.tools, Maps: f.maps}).Compile(context.Background(), noisy)
	assert.False(t, res.Success)
	require.ErrorIs(t, res.Err, errs.ErrConversionFailed)
	assert.Equal(t, "nu2rust: unsupported construct", res.Err.Error())
}

func TestCompileRejectsNonSource(t *testing.T) {
	f := newFixture(t, false)
	res := New(Options{Tools: f.tools}).Compile(context.Background(), filepath.Join(f.root, "src", "main.rs"))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, errs.ErrConversionFailed)
	assert.Equal(t, 0, f.calls(t))
}

func TestCompileRustfmtMissingIsWarning(t *testing.T) {
	f := newFixture(t, false)
	delete(f.tools, toolchain.Rustfmt)
	res := New(Options{Tools: f.tools, Maps: f.maps}).Compile(context.Background(), f.nu)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "rustfmt")
}

func TestCompileCheckErrors(t *testing.T) {
	f := newFixture(t, true)
	f.cargoOutput(t, cargoError)
	o := New(Options{Tools: f.tools, Maps: f.maps, Check: true})

	res := o.Compile(context.Background(), f.nu)
	assert.False(t, res.Success)
	require.ErrorIs(t, res.Err, errs.ErrCheckFailed)
	require.NotNil(t, res.Report)
	require.Len(t, res.Report.Errors, 1)

	require.NotNil(t, res.Diagnostics)
	require.Equal(t, 1, res.Diagnostics.Len())
	d := res.Diagnostics.Items()[0]
	assert.Equal(t, f.nu, d.Primary.File)
	assert.Equal(t, uint32(2), d.Primary.LineStart)
	assert.Equal(t, uint32(3), d.Primary.ColStart)
	assert.Equal(t, uint32(6), d.Primary.ColEnd)
	assert.Equal(t, "E0308", d.Code)
}

func TestCompileCheckWarningsStaySuccessful(t *testing.T) {
	f := newFixture(t, true)
	f.cargoOutput(t, cargoWarning)
	res := New(Options{Tools: f.tools, Maps: f.maps, Check: true}).Compile(context.Background(), f.nu)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	require.Equal(t, 1, res.Diagnostics.Len())
	assert.True(t, res.Diagnostics.HasWarnings())
}

func TestCompileCheckSkippedOutsideCargo(t *testing.T) {
	f := newFixture(t, false)
	res := New(Options{Tools: f.tools, Maps: f.maps, Check: true}).Compile(context.Background(), f.nu)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Report)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Cargo.toml")
}

func TestCompileAlreadyInProgress(t *testing.T) {
	f := newFixture(t, false)
	hold := f.nu + ".hold"
	require.NoError(t, os.WriteFile(hold, nil, 0o600))

	var mu sync.Mutex
	completions := 0
	o := New(Options{Tools: f.tools, Maps: f.maps, OnComplete: func(context.Context, Result) {
		mu.Lock()
		completions++
		mu.Unlock()
	}})

	done := make(chan Result, 1)
	go func() { done <- o.Compile(context.Background(), f.nu) }()
	require.Eventually(t, func() bool { return f.calls(t) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.True(t, o.InFlight(f.nu))

	second := o.Compile(context.Background(), f.nu)
	assert.ErrorIs(t, second.Err, errs.ErrAlreadyInProgress)
	assert.False(t, second.Success)

	require.NoError(t, os.Remove(hold))
	first := <-done
	require.NoError(t, first.Err)
	assert.False(t, o.InFlight(f.nu))
	assert.Equal(t, 1, f.calls(t), "rejected request must not run the translator")

	mu.Lock()
	assert.Equal(t, 1, completions)
	mu.Unlock()
}

func TestCompileRecoversPanics(t *testing.T) {
	var completed []bool
	o := New(Options{Tools: panicTools{}, OnComplete: func(_ context.Context, res Result) { completed = append(completed, res.Success) }})
	res := o.Compile(context.Background(), "/tmp/nowhere/main.nu")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panic: boom")
	assert.False(t, o.InFlight("/tmp/nowhere/main.nu"))
	assert.Equal(t, []bool{false}, completed)
}

func TestCompileAllKeepsOrder(t *testing.T) {
	f := newFixture(t, false)
	other := filepath.Join(f.root, "src", "other.nu")
	broken := filepath.Join(f.root, "src", "broken.nu")
	require.NoError(t, os.WriteFile(other, []byte("f x() {}\n"), 0o600))
	require.NoError(t, os.WriteFile(broken, []byte("???"), 0o600))

	results := New(Options{Tools: f.tools, Maps: f.maps}).CompileAll(context.Background(), []string{f.nu, broken, other}, 2)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, other, results[2].SourcePath)
}

func TestFormatNuRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	o := New(Options{Tools: f.tools})
	out, err := o.Format(context.Background(), f.nu)
	require.NoError(t, err)
	text := string(out)
	assert.True(t, strings.HasPrefix(text, "# from rust\n"))
	assert.Contains(t, text, "// formatted")

	entries, err := os.ReadDir(filepath.Join(f.root, "src"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".temp.", "scratch files are removed")
	}
}

func TestFormatTextIgnoresDisk(t *testing.T) {
	f := newFixture(t, false)
	f.tools[toolchain.Nu2Rust] = writeScript(t, filepath.Join(f.root, "bin"), "nu2rust-cp", "#!/bin/sh\ncp \"$1\" \"$3\"\n")
	o := New(Options{Tools: f.tools})

	out, err := o.FormatText(context.Background(), f.nu, []byte("f main() {\n  unsaved_work()\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, "# from rust\nf main() {\n  unsaved_work()\n}\n// formatted\n", string(out))

	disk, err := os.ReadFile(f.nu)
	require.NoError(t, err)
	assert.Equal(t, "f main() {\n  let x: i32 = \"a\"\n}\n", string(disk), "the file itself is untouched")
	_, statErr := os.Stat(filepath.Join(f.root, "src", ".main.temp.nu"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFormatFileWritesBack(t *testing.T) {
	f := newFixture(t, false)
	rs := filepath.Join(f.root, "src", "lib.rs")
	require.NoError(t, os.WriteFile(rs, []byte("fn a(){}\n"), 0o600))
	o := New(Options{Tools: f.tools})

	changed, err := o.FormatFile(context.Background(), rs)
	require.NoError(t, err)
	assert.True(t, changed)
	data, err := os.ReadFile(rs)
	require.NoError(t, err)
	assert.Equal(t, "fn a(){}\n// formatted\n", string(data))
}

func TestFormatFailureCleansUp(t *testing.T) {
	f := newFixture(t, false)
	delete(f.tools, toolchain.Rust2Nu)
	_, err := New(Options{Tools: f.tools}).Format(context.Background(), f.nu)
	require.ErrorIs(t, err, errs.ErrToolMissing)
	_, statErr := os.Stat(filepath.Join(f.root, "src", ".main.temp.rs"))
	assert.True(t, os.IsNotExist(statErr))
}
