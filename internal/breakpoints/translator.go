// Package breakpoints mirrors breakpoints set in .nu files onto the
// generated .rs files the debugger actually runs.
//
// Every source breakpoint is in one of three states: unmapped (no forward
// mapping, nothing registered), mapped (a target breakpoint is registered
// and the pair recorded) or removed. Removal is file-scoped: positions are
// not stable across recompiles, so removing any breakpoint of a file drops
// every mirrored breakpoint of that file.
package breakpoints

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"nubridge/internal/event"
	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
	"nubridge/internal/trace"
)

// Lookup resolves source positions to target positions.
type Lookup interface {
	MapForward(mapPath string, line, col uint32) (sourcemap.Mapping, bool)
}

// Debugger registers target breakpoints with the debug adapter.
type Debugger interface {
	AddBreakpoints(ctx context.Context, bps []Breakpoint) error
	RemoveBreakpoints(ctx context.Context, bps []Breakpoint) error
}

// Severity of a user notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(sev Severity, msg string)
}

// Translator keeps the source/target breakpoint pairs.
type Translator struct {
	maps   Lookup
	dbg    Debugger
	notify Notifier
	tracer trace.Tracer

	mu     sync.Mutex
	pairs  map[string][]Pair // by canonical source path
	nextID int
}

// New creates a Translator. notify may be nil.
func New(maps Lookup, dbg Debugger, notify Notifier, tracer trace.Tracer) *Translator {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Translator{
		maps:   maps,
		dbg:    dbg,
		notify: notify,
		tracer: tracer,
		pairs:  make(map[string][]Pair),
		nextID: 1,
	}
}

func (t *Translator) say(sev Severity, format string, args ...any) {
	if t.notify != nil {
		t.notify.Notify(sev, fmt.Sprintf(format, args...))
	}
}

// Add mirrors each .nu breakpoint. A breakpoint whose line has no mapping
// produces a warning and stays unmapped; it is not retried. The returned
// pairs are the ones registered by this call.
func (t *Translator) Add(ctx context.Context, bps ...Breakpoint) []Pair {
	return t.addAll(ctx, bps, true)
}

func (t *Translator) addAll(ctx context.Context, bps []Breakpoint, announce bool) []Pair {
	var added []Pair
	for _, bp := range bps {
		if !source.IsSource(bp.Path) || bp.Line == 0 {
			continue
		}
		if p, ok := t.add(ctx, bp, announce); ok {
			added = append(added, p)
		}
	}
	return added
}

func (t *Translator) add(ctx context.Context, bp Breakpoint, announce bool) (Pair, bool) {
	src := source.Canonical(bp.Path)
	bp.Path = src
	target := source.TargetPath(src)

	col := bp.Col
	if col == 0 {
		col = 1
	}
	hit, ok := t.maps.MapForward(source.MapPath(target), bp.Line, col)
	if !ok {
		trace.Point(t.tracer, trace.ScopeItem, "breakpoint", "unmapped", bp.Summary())
		t.say(SeverityWarning, "Cannot map Nu breakpoint at line %d. The position map may be stale.", bp.Line)
		return Pair{}, false
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.mu.Unlock()

	mirror := Breakpoint{
		ID:           id,
		Path:         target,
		Line:         hit.Target.Line,
		Col:          hit.Target.Col,
		Enabled:      bp.Enabled,
		Condition:    bp.Condition,
		HitCondition: bp.HitCondition,
		LogMessage:   bp.LogMessage,
	}
	if err := t.dbg.AddBreakpoints(ctx, []Breakpoint{mirror}); err != nil {
		trace.Error(t.tracer, "breakpoint", "add", err, "source", bp.Summary())
		t.say(SeverityError, "Failed to set Rust breakpoint for %s: %v", bp.Summary(), err)
		return Pair{}, false
	}

	pair := Pair{Source: bp, Target: mirror}
	t.mu.Lock()
	t.pairs[src] = append(t.pairs[src], pair)
	t.mu.Unlock()

	trace.Point(t.tracer, trace.ScopeItem, "breakpoint", "mapped", bp.Summary(),
		"target", strconv.FormatUint(uint64(mirror.Line), 10))
	if announce {
		t.say(SeverityInfo, "Nu breakpoint at line %d → Rust line %d", bp.Line, mirror.Line)
	}
	return pair, true
}

// Remove drops every mirrored breakpoint of each file named by bps. Files
// with nothing recorded are skipped. It returns the number of target
// breakpoints removed.
func (t *Translator) Remove(ctx context.Context, bps ...Breakpoint) int {
	seen := make(map[string]bool)
	removed := 0
	for _, bp := range bps {
		if !source.IsSource(bp.Path) {
			continue
		}
		src := source.Canonical(bp.Path)
		if seen[src] {
			continue
		}
		seen[src] = true
		removed += len(t.dropFile(ctx, src))
	}
	return removed
}

func (t *Translator) dropFile(ctx context.Context, src string) []Pair {
	t.mu.Lock()
	pairs := t.pairs[src]
	delete(t.pairs, src)
	t.mu.Unlock()
	if len(pairs) == 0 {
		return nil
	}
	targets := make([]Breakpoint, len(pairs))
	for i, p := range pairs {
		targets[i] = p.Target
	}
	if err := t.dbg.RemoveBreakpoints(ctx, targets); err != nil {
		trace.Error(t.tracer, "breakpoint", "remove", err, "source", src)
	}
	return pairs
}

// Change applies a modification as Remove followed by Add.
func (t *Translator) Change(ctx context.Context, bps ...Breakpoint) []Pair {
	t.Remove(ctx, bps...)
	return t.Add(ctx, bps...)
}

// Apply handles one editor change notification in removed, changed, added
// order. Removal is file-scoped, so it runs before anything is mirrored.
func (t *Translator) Apply(ctx context.Context, c Changed) {
	t.Remove(ctx, c.Removed...)
	t.Change(ctx, c.Changed...)
	t.Add(ctx, c.Added...)
}

// Sync runs Add for every registered source breakpoint. It recovers state
// after a restart; breakpoints already mirrored are replaced, not doubled.
func (t *Translator) Sync(ctx context.Context, all []Breakpoint) []Pair {
	t.Remove(ctx, all...)
	return t.Add(ctx, all...)
}

// Refresh re-maps the recorded breakpoints of sourcePath, typically after
// a recompile replaced its position map. Only failures are announced.
func (t *Translator) Refresh(ctx context.Context, sourcePath string) []Pair {
	pairs := t.dropFile(ctx, source.Canonical(sourcePath))
	if len(pairs) == 0 {
		return nil
	}
	bps := make([]Breakpoint, len(pairs))
	for i, p := range pairs {
		bps[i] = p.Source
	}
	return t.addAll(ctx, bps, false)
}

// Pairs returns the recorded pairs of sourcePath.
func (t *Translator) Pairs(sourcePath string) []Pair {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Pair(nil), t.pairs[source.Canonical(sourcePath)]...)
}

// Files lists source files with mirrored breakpoints.
func (t *Translator) Files() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pairs))
	for f := range t.pairs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Forget drops the pairs of sourcePath and removes their target
// breakpoints. It is used when the file's map becomes unavailable.
func (t *Translator) Forget(ctx context.Context, sourcePath string) {
	t.dropFile(ctx, source.Canonical(sourcePath))
}

// Clear removes every mirrored breakpoint.
func (t *Translator) Clear(ctx context.Context) {
	for _, f := range t.Files() {
		t.dropFile(ctx, f)
	}
}

// Attach subscribes the translator to breakpoint changes, session starts
// and completed compiles. Cancel the returned group to detach.
func (t *Translator) Attach(bus *event.Bus) (*event.Group, error) {
	g := &event.Group{}
	err := g.Add(event.Subscribe(bus, event.TopicBreakpointsChanged, func(ctx context.Context, c Changed) error {
		t.Apply(ctx, c)
		return nil
	}))
	if err == nil {
		err = g.Add(event.Subscribe(bus, event.TopicSessionStarted, func(ctx context.Context, s Snapshot) error {
			t.Sync(ctx, s.Breakpoints)
			return nil
		}))
	}
	if err == nil {
		err = g.Add(event.Subscribe(bus, event.TopicCompileCompleted, func(ctx context.Context, c event.CompileCompleted) error {
			if c.Success {
				t.Refresh(ctx, c.Path)
			}
			return nil
		}))
	}
	if err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}
