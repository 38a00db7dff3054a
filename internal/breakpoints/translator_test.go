package breakpoints

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nubridge/internal/event"
	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
)

// forwardLookup maps exact source lines of one map.
type forwardLookup struct {
	mapPath string
	lines   map[uint32]uint32
}

func (f *forwardLookup) MapForward(mapPath string, line, col uint32) (sourcemap.Mapping, bool) {
	if source.Canonical(mapPath) != source.Canonical(f.mapPath) {
		return sourcemap.Mapping{}, false
	}
	target, ok := f.lines[line]
	if !ok {
		return sourcemap.Mapping{}, false
	}
	return sourcemap.Mapping{Source: source.Pos{Line: line, Col: col}, Target: source.Pos{Line: target, Col: 5}}, true
}

type fakeDebugger struct {
	active  map[int]Breakpoint
	addErr  error
	removes int
}

func newDebugger() *fakeDebugger { return &fakeDebugger{active: make(map[int]Breakpoint)} }

func (d *fakeDebugger) AddBreakpoints(_ context.Context, bps []Breakpoint) error {
	if d.addErr != nil {
		return d.addErr
	}
	for _, bp := range bps {
		d.active[bp.ID] = bp
	}
	return nil
}

func (d *fakeDebugger) RemoveBreakpoints(_ context.Context, bps []Breakpoint) error {
	d.removes++
	for _, bp := range bps {
		delete(d.active, bp.ID)
	}
	return nil
}

type message struct {
	sev Severity
	msg string
}

type recorder struct{ msgs []message }

func (r *recorder) Notify(sev Severity, msg string) { r.msgs = append(r.msgs, message{sev, msg}) }

const (
	nuPath = "/w/src/main.nu"
	rsPath = "/w/src/main.rs"
)

func setup() (*Translator, *fakeDebugger, *recorder) {
	lk := &forwardLookup{mapPath: source.MapPath(rsPath), lines: map[uint32]uint32{3: 10, 4: 12, 7: 20}}
	dbg := newDebugger()
	rec := &recorder{}
	return New(lk, dbg, rec, nil), dbg, rec
}

func TestAddMapped(t *testing.T) {
	tr, dbg, rec := setup()
	pairs := tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 3, Enabled: true, Condition: "x > 1"})
	require.Len(t, pairs, 1)

	target := pairs[0].Target
	assert.Equal(t, rsPath, target.Path)
	assert.Equal(t, uint32(10), target.Line)
	assert.Equal(t, "x > 1", target.Condition)
	assert.True(t, target.Enabled)
	assert.Contains(t, dbg.active, target.ID)

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, SeverityInfo, rec.msgs[0].sev)
	assert.Equal(t, "Nu breakpoint at line 3 → Rust line 10", rec.msgs[0].msg)
	assert.Len(t, tr.Pairs(nuPath), 1)
}

func TestAddUnmappedWarnsAndRemoveIsNoop(t *testing.T) {
	tr, dbg, rec := setup()
	pairs := tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 99})
	assert.Empty(t, pairs)
	assert.Empty(t, dbg.active)
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, SeverityWarning, rec.msgs[0].sev)
	assert.Contains(t, rec.msgs[0].msg, "may be stale")

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, tr.Remove(context.Background(), Breakpoint{Path: nuPath, Line: 99}))
	})
	assert.Equal(t, 0, dbg.removes)
}

func TestNonSourceFilesIgnored(t *testing.T) {
	tr, dbg, rec := setup()
	assert.Empty(t, tr.Add(context.Background(), Breakpoint{Path: rsPath, Line: 3}))
	assert.Empty(t, dbg.active)
	assert.Empty(t, rec.msgs)
}

func TestRemoveIsFileScoped(t *testing.T) {
	tr, dbg, _ := setup()
	tr.Add(context.Background(),
		Breakpoint{Path: nuPath, Line: 3},
		Breakpoint{Path: nuPath, Line: 4},
		Breakpoint{Path: nuPath, Line: 7},
	)
	require.Len(t, dbg.active, 3)

	n := tr.Remove(context.Background(), Breakpoint{Path: nuPath, Line: 4})
	assert.Equal(t, 3, n)
	assert.Empty(t, dbg.active)
	assert.Empty(t, tr.Pairs(nuPath))
}

func TestChangeIsRemoveThenAdd(t *testing.T) {
	tr, dbg, _ := setup()
	tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 3}, Breakpoint{Path: nuPath, Line: 4})

	// Moved to an unmapped line: everything of the file goes, nothing comes back.
	pairs := tr.Change(context.Background(), Breakpoint{Path: nuPath, Line: 50})
	assert.Empty(t, pairs)
	assert.Empty(t, dbg.active)

	// Unmapped to mapped works the same way.
	pairs = tr.Change(context.Background(), Breakpoint{Path: nuPath, Line: 7})
	require.Len(t, pairs, 1)
	assert.Equal(t, uint32(20), pairs[0].Target.Line)
}

func TestApplyMoveKeepsNewMirror(t *testing.T) {
	tr, dbg, _ := setup()
	tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 3})

	tr.Apply(context.Background(), Changed{
		Added:   []Breakpoint{{Path: nuPath, Line: 7}},
		Removed: []Breakpoint{{Path: nuPath, Line: 3}},
	})
	require.Len(t, dbg.active, 1)
	for _, bp := range dbg.active {
		assert.Equal(t, uint32(20), bp.Line)
	}
	pairs := tr.Pairs(nuPath)
	require.Len(t, pairs, 1)
	assert.Equal(t, uint32(7), pairs[0].Source.Line)
}

func TestSyncDoesNotDouble(t *testing.T) {
	tr, dbg, _ := setup()
	all := []Breakpoint{{Path: nuPath, Line: 3}, {Path: nuPath, Line: 7}, {Path: "/w/other.txt", Line: 1}}
	tr.Sync(context.Background(), all)
	tr.Sync(context.Background(), all)
	assert.Len(t, dbg.active, 2)
	assert.Len(t, tr.Pairs(nuPath), 2)
}

func TestDebuggerFailureLeavesUnmapped(t *testing.T) {
	tr, dbg, rec := setup()
	dbg.addErr = errors.New("adapter gone")
	assert.Empty(t, tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 3}))
	assert.Empty(t, tr.Pairs(nuPath))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, SeverityError, rec.msgs[0].sev)
}

func TestForgetAndClear(t *testing.T) {
	tr, dbg, _ := setup()
	tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 3})
	tr.Forget(context.Background(), nuPath)
	assert.Empty(t, dbg.active)
	assert.Empty(t, tr.Files())

	tr.Add(context.Background(), Breakpoint{Path: nuPath, Line: 3})
	tr.Clear(context.Background())
	assert.Empty(t, dbg.active)
}

func TestAttachFollowsBus(t *testing.T) {
	tr, dbg, rec := setup()
	bus := event.NewBus()
	g, err := tr.Attach(bus)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, event.TopicBreakpointsChanged, Changed{Added: []Breakpoint{{Path: nuPath, Line: 3}}}))
	require.Len(t, dbg.active, 1)

	// A successful compile re-maps quietly.
	rec.msgs = nil
	require.NoError(t, bus.Publish(ctx, event.TopicCompileCompleted, event.CompileCompleted{Path: nuPath, Success: true}))
	assert.Len(t, dbg.active, 1)
	assert.Empty(t, rec.msgs)

	require.NoError(t, bus.Publish(ctx, event.TopicSessionStarted, Snapshot{Breakpoints: []Breakpoint{{Path: nuPath, Line: 3}, {Path: nuPath, Line: 4}}}))
	assert.Len(t, dbg.active, 2)

	g.Close()
	require.NoError(t, bus.Publish(ctx, event.TopicBreakpointsChanged, Changed{Removed: []Breakpoint{{Path: nuPath, Line: 3}}}))
	assert.Len(t, dbg.active, 2, "detached translator ignores events")
}

func TestParseFileLineSpec(t *testing.T) {
	file, line, err := ParseFileLineSpec("src/main.nu:12")
	require.NoError(t, err)
	assert.Equal(t, "src/main.nu", file)
	assert.Equal(t, uint32(12), line)

	for _, bad := range []string{"", "main.nu", "main.nu:", ":3", "main.nu:0", "main.nu:x"} {
		_, _, err := ParseFileLineSpec(bad)
		assert.Error(t, err, bad)
	}
}
