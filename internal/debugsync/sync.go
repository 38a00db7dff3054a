// Package debugsync keeps the .nu view in step with the .rs file a debugger
// is stepping through.
package debugsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nubridge/internal/event"
	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
	"nubridge/internal/trace"
)

// HighlightDuration is how long an execution highlight stays up.
const HighlightDuration = 500 * time.Millisecond

// Lookup resolves target positions to source positions.
type Lookup interface {
	MapBackward(mapPath string, line, col uint32) (sourcemap.Mapping, bool)
}

// View is the editor side: it scrolls to and decorates source lines.
// Locations are 1-based.
type View interface {
	Reveal(ctx context.Context, loc source.Location) error
	Highlight(ctx context.Context, loc source.Location) error
	ClearHighlight(ctx context.Context, path string) error
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithHighlightDuration overrides HighlightDuration.
func WithHighlightDuration(d time.Duration) Option {
	return func(s *Synchronizer) { s.delay = d }
}

// WithTracer attaches a tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Synchronizer) {
		if tr != nil {
			s.tracer = tr
		}
	}
}

// Synchronizer maps debugger and cursor positions in .rs files back to the
// .nu source and drives the View. Misses are ignored silently.
type Synchronizer struct {
	maps   Lookup
	view   View
	delay  time.Duration
	tracer trace.Tracer

	ended atomic.Bool
	group event.Group

	mu     sync.Mutex
	marked map[string]struct{} // source paths that may carry a highlight
}

// New creates a Synchronizer.
func New(maps Lookup, view View, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		maps:   maps,
		view:   view,
		delay:  HighlightDuration,
		tracer: trace.Nop,
		marked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolve maps a 0-based target line to a 1-based source location.
func (s *Synchronizer) resolve(targetPath string, line0 uint32) (source.Location, bool) {
	if s.ended.Load() || !source.IsTarget(targetPath) {
		return source.Location{}, false
	}
	target := source.Canonical(targetPath)
	at := source.FromZero(line0, 0)
	hit, ok := s.maps.MapBackward(source.MapPath(target), at.Line, at.Col)
	if !ok {
		trace.Point(s.tracer, trace.ScopeItem, "sync", "miss", at.String(), "target", target)
		return source.Location{}, false
	}
	pos := hit.Source
	if pos.Line == 0 {
		pos.Line = 1
	}
	if pos.Col == 0 {
		pos.Col = 1
	}
	return source.Location{Path: source.SourcePathFor(target), Pos: pos}, true
}

// OnExecutionPositionChanged reveals and highlights the source line of the
// new execution position. The highlight is cleared after the highlight
// duration whatever happens in between; a later event simply highlights
// again.
func (s *Synchronizer) OnExecutionPositionChanged(ctx context.Context, targetPath string, line0 uint32) bool {
	loc, ok := s.resolve(targetPath, line0)
	if !ok {
		return false
	}
	s.reveal(ctx, loc)
	if err := s.view.Highlight(ctx, loc); err != nil {
		trace.Error(s.tracer, "sync", "highlight", err)
		return true
	}
	s.mu.Lock()
	s.marked[loc.Path] = struct{}{}
	s.mu.Unlock()

	clearCtx := context.WithoutCancel(ctx)
	time.AfterFunc(s.delay, func() {
		if err := s.view.ClearHighlight(clearCtx, loc.Path); err != nil {
			trace.Error(s.tracer, "sync", "clear", err)
		}
	})
	return true
}

// OnCursorMoved reveals the source line matching a cursor in the target
// view, without highlighting.
func (s *Synchronizer) OnCursorMoved(ctx context.Context, targetPath string, line0 uint32) bool {
	loc, ok := s.resolve(targetPath, line0)
	if !ok {
		return false
	}
	s.reveal(ctx, loc)
	return true
}

func (s *Synchronizer) reveal(ctx context.Context, loc source.Location) {
	if err := s.view.Reveal(ctx, loc); err != nil {
		trace.Error(s.tracer, "sync", "reveal", err)
	}
}

// Attach subscribes to execution, cursor and session-end events.
func (s *Synchronizer) Attach(bus *event.Bus) error {
	err := s.group.Add(event.Subscribe(bus, event.TopicPositionChanged, func(ctx context.Context, p event.Position) error {
		s.OnExecutionPositionChanged(ctx, p.Path, p.Line)
		return nil
	}))
	if err == nil {
		err = s.group.Add(event.Subscribe(bus, event.TopicCursorMoved, func(ctx context.Context, p event.Position) error {
			s.OnCursorMoved(ctx, p.Path, p.Line)
			return nil
		}))
	}
	if err == nil {
		err = s.group.Add(event.Subscribe(bus, event.TopicSessionEnded, func(ctx context.Context, _ event.Session) error {
			s.End(ctx)
			return nil
		}))
	}
	if err != nil {
		s.group.Close()
	}
	return err
}

// End detaches every subscription and clears decorations right away.
// Events arriving afterwards are ignored.
func (s *Synchronizer) End(ctx context.Context) {
	if s.ended.Swap(true) {
		return
	}
	s.group.Close()
	s.mu.Lock()
	paths := make([]string, 0, len(s.marked))
	for p := range s.marked {
		paths = append(paths, p)
	}
	clear(s.marked)
	s.mu.Unlock()
	for _, p := range paths {
		if err := s.view.ClearHighlight(ctx, p); err != nil {
			trace.Error(s.tracer, "sync", "clear", err)
		}
	}
}

// Ended reports whether End ran.
func (s *Synchronizer) Ended() bool { return s.ended.Load() }
