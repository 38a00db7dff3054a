// Package autocompile recompiles .nu files when they are saved or change
// on disk.
package autocompile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/errs"
	"nubridge/internal/event"
	"nubridge/internal/source"
	"nubridge/internal/trace"
)

// Compiler is the part of the orchestrator the controller drives.
type Compiler interface {
	Compile(ctx context.Context, sourcePath string) buildpipeline.Result
	InFlight(sourcePath string) bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithEnabled sets the initial state (default on).
func WithEnabled(on bool) Option {
	return func(c *Controller) { c.enabled.Store(on) }
}

// WithResultHandler receives every finished compile the controller started.
func WithResultHandler(fn func(context.Context, buildpipeline.Result)) Option {
	return func(c *Controller) { c.onResult = fn }
}

// WithTracer attaches a tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(c *Controller) {
		if tr != nil {
			c.tracer = tr
		}
	}
}

// Controller starts compiles in the background. A trigger for a path that
// is already compiling is dropped.
type Controller struct {
	compiler Compiler
	onResult func(context.Context, buildpipeline.Result)
	tracer   trace.Tracer
	enabled  atomic.Bool

	group    event.Group
	wg       sync.WaitGroup
	started  atomic.Uint64
	dropped  atomic.Uint64
	closedMu sync.RWMutex
	closed   bool
}

// New creates an enabled Controller.
func New(compiler Compiler, opts ...Option) *Controller {
	c := &Controller{compiler: compiler, tracer: trace.Nop}
	c.enabled.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether triggers start compiles.
func (c *Controller) Enabled() bool { return c.enabled.Load() }

// SetEnabled sets the state.
func (c *Controller) SetEnabled(on bool) { c.enabled.Store(on) }

// Toggle flips the state and returns the new one.
func (c *Controller) Toggle() bool {
	for {
		old := c.enabled.Load()
		if c.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Trigger starts a background compile of path. It reports false when the
// controller is disabled or closed, the path is not a .nu file, or a compile
// for it is already running.
func (c *Controller) Trigger(ctx context.Context, path, reason string) bool {
	if !c.enabled.Load() || !source.IsSource(path) {
		return false
	}
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return false
	}
	if c.compiler.InFlight(path) {
		c.dropped.Add(1)
		trace.Point(c.tracer, trace.ScopeFile, "autocompile", "drop", reason, "path", path)
		return false
	}
	c.started.Add(1)
	trace.Point(c.tracer, trace.ScopeFile, "autocompile", "start", reason, "path", path)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := c.compiler.Compile(ctx, path)
		if errors.Is(res.Err, errs.ErrAlreadyInProgress) {
			c.dropped.Add(1)
			return
		}
		if c.onResult != nil {
			c.onResult(ctx, res)
		}
	}()
	return true
}

// Attach subscribes to file.saved and file.changed.
func (c *Controller) Attach(bus *event.Bus) error {
	err := c.group.Add(event.Subscribe(bus, event.TopicFileSaved, func(ctx context.Context, f event.File) error {
		c.Trigger(ctx, f.Path, "saved")
		return nil
	}))
	if err == nil {
		err = c.group.Add(event.Subscribe(bus, event.TopicFileChanged, func(ctx context.Context, f event.File) error {
			c.Trigger(ctx, f.Path, "changed")
			return nil
		}))
	}
	if err != nil {
		c.group.Close()
	}
	return err
}

// Stats returns how many compiles were started and dropped.
func (c *Controller) Stats() (started, dropped uint64) {
	return c.started.Load(), c.dropped.Load()
}

// Wait blocks until every started compile has finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Close detaches from the bus, refuses new triggers and waits for running
// compiles.
func (c *Controller) Close() {
	c.group.Close()
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()
	c.wg.Wait()
}
