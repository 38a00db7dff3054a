package autocompile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/errs"
	"nubridge/internal/event"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type fakeCompiler struct {
	mu       sync.Mutex
	inflight map[string]bool
	calls    []string
	release  chan struct{}
	busy     bool
}

func newCompiler() *fakeCompiler {
	return &fakeCompiler{inflight: map[string]bool{}}
}

func (f *fakeCompiler) Compile(_ context.Context, path string) buildpipeline.Result {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.inflight[path] = true
	release, busy := f.release, f.busy
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	f.mu.Lock()
	delete(f.inflight, path)
	f.mu.Unlock()
	if busy {
		return buildpipeline.Result{SourcePath: path, Err: fmt.Errorf("%s: %w", path, errs.ErrAlreadyInProgress)}
	}
	return buildpipeline.Result{SourcePath: path, Success: true}
}

func (f *fakeCompiler) InFlight(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight[path]
}

func (f *fakeCompiler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSavedAndChangedTrigger(t *testing.T) {
	comp := newCompiler()
	var mu sync.Mutex
	var results []buildpipeline.Result
	c := New(comp, WithResultHandler(func(_ context.Context, r buildpipeline.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}))
	bus := event.NewBus()
	require.NoError(t, c.Attach(bus))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event.TopicFileSaved, event.File{Path: "/w/a.nu"}))
	c.Wait()
	require.NoError(t, bus.Publish(ctx, event.TopicFileChanged, event.File{Path: "/w/b.nu"}))
	c.Wait()
	require.NoError(t, bus.Publish(ctx, event.TopicFileSaved, event.File{Path: "/w/c.rs"}))
	c.Wait()

	assert.Equal(t, 2, comp.callCount())
	mu.Lock()
	assert.Len(t, results, 2)
	mu.Unlock()
}

func TestInFlightPathIsDropped(t *testing.T) {
	comp := newCompiler()
	comp.release = make(chan struct{})
	c := New(comp)

	ctx := context.Background()
	require.True(t, c.Trigger(ctx, "/w/a.nu", "saved"))
	require.Eventually(t, func() bool { return comp.InFlight("/w/a.nu") }, timeout, tick)
	assert.False(t, c.Trigger(ctx, "/w/a.nu", "changed"))
	assert.True(t, c.Trigger(ctx, "/w/b.nu", "changed"), "other paths still compile")

	close(comp.release)
	c.Wait()
	started, dropped := c.Stats()
	assert.Equal(t, uint64(2), started)
	assert.Equal(t, uint64(1), dropped)
}

func TestAlreadyInProgressResultIsSwallowed(t *testing.T) {
	comp := newCompiler()
	comp.busy = true
	called := false
	c := New(comp, WithResultHandler(func(context.Context, buildpipeline.Result) { called = true }))
	require.True(t, c.Trigger(context.Background(), "/w/a.nu", "saved"))
	c.Wait()
	assert.False(t, called)
}

func TestToggleAndClose(t *testing.T) {
	comp := newCompiler()
	c := New(comp, WithEnabled(false))
	assert.False(t, c.Trigger(context.Background(), "/w/a.nu", "saved"))
	assert.True(t, c.Toggle())
	assert.True(t, c.Enabled())
	assert.False(t, c.Toggle())
	c.SetEnabled(true)

	bus := event.NewBus()
	require.NoError(t, c.Attach(bus))
	c.Close()
	assert.Equal(t, 0, bus.Stats().Subscriptions)
	assert.False(t, c.Trigger(context.Background(), "/w/a.nu", "saved"))
	assert.Equal(t, 0, comp.callCount())
}
