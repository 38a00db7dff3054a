package buildpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"nubridge/internal/cargo"
	"nubridge/internal/diagmap"
	"nubridge/internal/errs"
	"nubridge/internal/event"
	"nubridge/internal/source"
	"nubridge/internal/toolchain"
	"nubridge/internal/trace"
)

// Maps is the part of the position map index the pipeline needs.
type Maps interface {
	diagmap.Lookup
	Invalidate(mapPaths ...string)
}

// Options configure an Orchestrator.
type Options struct {
	Tools Tools
	Maps  Maps
	// Check enables the cargo check stage.
	Check bool
	// MaxDiagnostics caps translated diagnostics per file; 0 is unlimited.
	MaxDiagnostics int
	Progress       ProgressSink
	// OnComplete fires once per Compile that was not rejected as already
	// in progress. PublishCompleted adapts it to the event bus.
	OnComplete func(ctx context.Context, res Result)
	Translator *diagmap.Translator
}

// Orchestrator runs the translate/format/check pipeline for .nu files and
// guarantees that at most one compile per file is in flight.
type Orchestrator struct {
	tools      Tools
	maps       Maps
	translator *diagmap.Translator
	progress   ProgressSink
	onComplete func(context.Context, Result)
	maxDiag    int
	check      atomic.Bool

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		tools:      opts.Tools,
		maps:       opts.Maps,
		translator: opts.Translator,
		progress:   opts.Progress,
		onComplete: opts.OnComplete,
		maxDiag:    opts.MaxDiagnostics,
		inFlight:   make(map[string]struct{}),
	}
	if o.translator == nil && o.maps != nil {
		o.translator = diagmap.New(o.maps)
	}
	o.check.Store(opts.Check)
	return o
}

// PublishCompleted returns an OnComplete hook that announces every
// finished compile as compile.completed on bus.
func PublishCompleted(bus *event.Bus) func(context.Context, Result) {
	return func(ctx context.Context, res Result) {
		payload := event.CompileCompleted{Path: res.SourcePath, Success: res.Success, Err: res.Err}
		if err := bus.Publish(ctx, event.TopicCompileCompleted, payload); err != nil {
			trace.Error(trace.FromContext(ctx), "compile", "completed", err)
		}
	}
}

// SetCheck toggles the check stage for subsequent compiles.
func (o *Orchestrator) SetCheck(on bool) { o.check.Store(on) }

// CheckEnabled reports whether the check stage runs.
func (o *Orchestrator) CheckEnabled() bool { return o.check.Load() }

// InFlight reports whether a compile for sourcePath is running.
func (o *Orchestrator) InFlight(sourcePath string) bool {
	key := source.Canonical(sourcePath)
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[key]
	return ok
}

func (o *Orchestrator) acquire(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[key]; busy {
		return false
	}
	o.inFlight[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	delete(o.inFlight, key)
	o.mu.Unlock()
}

// Compile translates sourcePath, formats the output, refreshes its position
// map and optionally checks it. Every failure is reported in Result.Err;
// Compile itself never panics.
func (o *Orchestrator) Compile(ctx context.Context, sourcePath string) (res Result) {
	key := source.Canonical(sourcePath)
	if !o.acquire(key) {
		return Result{SourcePath: key, Err: fmt.Errorf("%s: %w", key, errs.ErrAlreadyInProgress)}
	}

	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeFile, "compile", filepath.Base(key), trace.ParentSpan(ctx))
	ctx = trace.WithSpan(ctx, span)

	res = Result{
		SourcePath: key,
		TargetPath: source.TargetPath(key),
		MapPath:    source.MapPathForSource(key),
	}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("compile %s: panic: %v\n%s", key, r, debug.Stack())
			emit(o.progress, key, StageQueued, StatusError, res.Err, 0)
		}
		o.release(key)
		if res.Err != nil {
			trace.Error(tr, "compile", "result", res.Err, "kind", errs.Kind(res.Err))
		}
		span.WithExtra("success", strconv.FormatBool(res.Success)).End(errs.Kind(res.Err))
		if o.onComplete != nil {
			o.onComplete(ctx, res)
		}
	}()

	emit(o.progress, key, StageQueued, StatusQueued, nil, 0)
	if !source.IsSource(key) {
		res.Err = fmt.Errorf("%s: not a %s file: %w", key, source.SourceExt, errs.ErrConversionFailed)
		return res
	}

	if err := o.translate(ctx, key, res.TargetPath, &res.Timings); err != nil {
		res.Err = err
		return res
	}
	if w := o.format(ctx, res.TargetPath, &res.Timings); w != "" {
		res.Warnings = append(res.Warnings, w)
	}
	if o.maps != nil {
		o.maps.Invalidate(res.MapPath)
	}

	if !o.check.Load() {
		emit(o.progress, key, StageCheck, StatusSkipped, nil, 0)
		res.Success = true
		return res
	}
	o.runCheck(ctx, &res)
	return res
}

func (o *Orchestrator) translate(ctx context.Context, src, target string, timings *Timings) error {
	emit(o.progress, src, StageTranslate, StatusWorking, nil, 0)
	start := time.Now()
	cmd, err := o.command(ctx, toolchain.Nu2Rust, errs.ErrConversionFailed, src, "-o", target, "--sourcemap", "-f")
	if err == nil {
		cmd.dir = filepath.Dir(src)
		var out output
		out, err = cmd.run(ctx)
		// The translator reports some failures on stderr with a zero exit.
		if err == nil && len(bytes.TrimSpace(out.stderr)) > 0 {
			err = &errs.CommandError{
				Name:   cmd.tool,
				Args:   cmd.args,
				Stdout: string(out.stdout),
				Stderr: string(out.stderr),
				Kind:   errs.ErrConversionFailed,
			}
		}
	}
	elapsed := time.Since(start)
	timings.Set(StageTranslate, elapsed)
	if err != nil {
		emit(o.progress, src, StageTranslate, StatusError, err, elapsed)
		return err
	}
	emit(o.progress, src, StageTranslate, StatusDone, nil, elapsed)
	return nil
}

// format runs rustfmt in place. Failures are returned as a warning text.
func (o *Orchestrator) format(ctx context.Context, target string, timings *Timings) string {
	src := source.SourcePathFor(target)
	emit(o.progress, src, StageFormat, StatusWorking, nil, 0)
	start := time.Now()
	cmd, err := o.command(ctx, toolchain.Rustfmt, errs.ErrConversionFailed, target)
	if err == nil {
		cmd.dir = filepath.Dir(target)
		_, err = cmd.run(ctx)
	}
	elapsed := time.Since(start)
	timings.Set(StageFormat, elapsed)
	if err != nil {
		emit(o.progress, src, StageFormat, StatusSkipped, err, elapsed)
		return fmt.Sprintf("rustfmt failed for %s: %v", target, err)
	}
	emit(o.progress, src, StageFormat, StatusDone, nil, elapsed)
	return ""
}

// runCheck runs cargo check from the crate root holding the target file and
// translates what it reports. A file outside any cargo project is not
// checked.
func (o *Orchestrator) runCheck(ctx context.Context, res *Result) {
	src := res.SourcePath
	root, ok, err := cargo.FindRoot(res.TargetPath)
	if err != nil || !ok {
		res.Success = true
		res.Warnings = append(res.Warnings, "check skipped: "+cargo.ManifestName+" not found")
		emit(o.progress, src, StageCheck, StatusSkipped, nil, 0)
		return
	}

	emit(o.progress, src, StageCheck, StatusWorking, nil, 0)
	start := time.Now()
	rep, err := o.cargoCheck(ctx, root)
	elapsed := time.Since(start)
	res.Timings.Set(StageCheck, elapsed)
	if err != nil {
		res.Err = err
		emit(o.progress, src, StageCheck, StatusError, err, elapsed)
		return
	}

	res.Report = rep
	if o.translator != nil {
		res.Diagnostics = o.translator.TranslateReport(src, res.TargetPath, rep, o.maxDiag)
	}
	if len(rep.Errors) > 0 {
		res.Err = fmt.Errorf("%s: %d error(s): %w", filepath.Base(res.TargetPath), len(rep.Errors), errs.ErrCheckFailed)
		emit(o.progress, src, StageCheck, StatusError, res.Err, elapsed)
		return
	}
	res.Success = true
	emit(o.progress, src, StageCheck, StatusDone, nil, elapsed)
}

// cargoCheck parses stdout even when cargo exits non-zero; only a run that
// produced no diagnostics at all turns the exit status into an error.
func (o *Orchestrator) cargoCheck(ctx context.Context, root string) (*cargo.Report, error) {
	cmd, err := o.command(ctx, toolchain.Cargo, errs.ErrCheckFailed, "check", "--message-format=json", "--color=never")
	if err != nil {
		return nil, err
	}
	cmd.dir = root
	out, runErr := cmd.run(ctx)
	rep, perr := cargo.ParseStream(bytes.NewReader(out.stdout), root)
	if perr != nil {
		return nil, errors.Join(runErr, fmt.Errorf("parse cargo output: %w", perr))
	}
	if runErr != nil && len(rep.Errors) == 0 {
		return nil, runErr
	}
	return rep, nil
}

// CompileAll compiles paths with at most jobs compiles running at once
// (GOMAXPROCS when jobs <= 0). Results follow the order of paths.
func (o *Orchestrator) CompileAll(ctx context.Context, paths []string, jobs int) []Result {
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	} else {
		g.SetLimit(defaultJobs())
	}
	for i, p := range paths {
		g.Go(func() error {
			results[i] = o.Compile(gctx, p)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // failures live in results
	return results
}
