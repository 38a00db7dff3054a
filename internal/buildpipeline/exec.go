package buildpipeline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"nubridge/internal/errs"
	"nubridge/internal/trace"
)

// Tools resolves tool names to executables.
type Tools interface {
	Find(ctx context.Context, tool string) (string, error)
}

type command struct {
	tool string // display name
	path string
	args []string
	dir  string
	kind error // sentinel reported on failure
}

type output struct {
	stdout []byte
	stderr []byte
}

// run executes c and captures both streams. A non-zero exit yields a
// *errs.CommandError; the captured output is returned either way so callers
// that parse stdout of failing runs (cargo check) can do so.
func (c command) run(ctx context.Context) (output, error) {
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeFile, "exec", c.tool, trace.ParentSpan(ctx))
	span.WithExtra("args", strings.Join(c.args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, c.args...) // #nosec G204 -- tool paths come from the locator
	cmd.Dir = c.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := output{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	if err == nil {
		span.End("ok")
		return out, nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	kind := c.kind
	if kind == nil {
		kind = errs.ErrConversionFailed
	}
	cerr := &errs.CommandError{
		Name:     c.tool,
		Args:     c.args,
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Kind:     kind,
		Err:      err,
	}
	span.End(cerr.Error())
	return out, cerr
}

func (o *Orchestrator) command(ctx context.Context, tool string, kind error, args ...string) (command, error) {
	path, err := o.tools.Find(ctx, tool)
	if err != nil {
		return command{}, err
	}
	return command{tool: tool, path: path, args: args, kind: kind}, nil
}

// fileBase is the path without its extension.
func fileBase(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}

func defaultJobs() int {
	return runtime.GOMAXPROCS(0)
}
