package buildpipeline

import (
	"time"

	"nubridge/internal/cargo"
	"nubridge/internal/diag"
)

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageQueued is the waiting state before any work starts.
	StageQueued Stage = "queued"
	// StageTranslate runs nu2rust.
	StageTranslate Stage = "translate"
	// StageFormat runs rustfmt over the generated file.
	StageFormat Stage = "format"
	// StageCheck runs cargo check.
	StageCheck Stage = "check"
	// StageBuild produces an executable.
	StageBuild Stage = "build"
)

// Stages lists the stages in pipeline order.
var Stages = []Stage{StageTranslate, StageFormat, StageCheck, StageBuild}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusSkipped indicates the stage did not apply.
	StatusSkipped Status = "skipped"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a file (or for the overall pipeline when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Result is the outcome of one Compile call. Err is nil on success and on
// check runs that reported warnings only.
type Result struct {
	Success    bool
	SourcePath string
	TargetPath string
	MapPath    string
	Err        error
	// Diagnostics are the checker messages translated onto the source file.
	Diagnostics *diag.Bag
	// Warnings collect non-fatal problems such as a failed rustfmt pass.
	Warnings []string
	// Report is the raw checker output, nil when the check did not run.
	Report  *cargo.Report
	Timings Timings
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
