// Package trace is the structured logging layer of nubridge.
//
// Every subsystem (compile pipeline, map index, breakpoint mirror, view
// sync, editor server, watcher) reports what it does as trace events; the
// CLI decides where they go.
//
// # Usage
//
//	nubridge compile --trace=- --trace-level=phase main.nu
//	nubridge lsp --trace=/tmp/nubridge.ndjson --trace-level=detail
//
// # Architecture
//
//   - Nop: discards everything when tracing is off
//   - StreamTracer: immediate write to a file or stderr (text or NDJSON)
//   - RingTracer: in-memory history for crash dumps
//   - MultiTracer: fan-out to several sinks
//
// # Levels and scopes
//
// LevelPhase shows ScopeDriver and ScopeFile events (commands, per-file
// stages); LevelDetail adds ScopeItem (single diagnostics, breakpoints,
// lookups). Error events pass every level except LevelOff.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeFile, "compile", "translate", 0)
//	defer span.End("")
package trace
