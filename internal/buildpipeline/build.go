package buildpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"nubridge/internal/cargo"
	"nubridge/internal/errs"
	"nubridge/internal/source"
	"nubridge/internal/toolchain"
)

// BuildOptions select the build flavour.
type BuildOptions struct {
	Release bool
	// DebugInfo builds with full debug info for a debugger session.
	DebugInfo bool
}

// BuildResult describes a produced executable.
type BuildResult struct {
	Compile Result
	Binary  string
	// Cargo is true when the binary came from `cargo build`.
	Cargo  bool
	Output string
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// Build compiles sourcePath and then builds an executable from the
// generated file. Inside a cargo project (the file lives under <root>/src)
// it runs cargo build; otherwise it invokes rustc directly.
func (o *Orchestrator) Build(ctx context.Context, sourcePath string, opts BuildOptions) (BuildResult, error) {
	res := o.Compile(ctx, sourcePath)
	out := BuildResult{Compile: res}
	if !res.Success {
		if res.Err == nil {
			res.Err = errs.ErrConversionFailed
		}
		return out, fmt.Errorf("build %s: %w", filepath.Base(sourcePath), res.Err)
	}

	src := res.SourcePath
	emit(o.progress, src, StageBuild, StatusWorking, nil, 0)
	start := time.Now()

	var err error
	if root, ok, ferr := cargo.FindRoot(res.TargetPath); ferr == nil && ok && cargo.InSrc(root, res.TargetPath) {
		out.Cargo = true
		err = o.cargoBuild(ctx, root, opts, &out)
	} else {
		err = o.rustcBuild(ctx, res.TargetPath, opts, &out)
	}
	elapsed := time.Since(start)
	out.Compile.Timings.Set(StageBuild, elapsed)
	if err != nil {
		emit(o.progress, src, StageBuild, StatusError, err, elapsed)
		return out, err
	}
	emit(o.progress, src, StageBuild, StatusDone, nil, elapsed)
	return out, nil
}

func (o *Orchestrator) cargoBuild(ctx context.Context, root string, opts BuildOptions, out *BuildResult) error {
	args := []string{"build"}
	profile := "debug"
	if opts.Release && !opts.DebugInfo {
		args = append(args, "--release")
		profile = "release"
	}
	cmd, err := o.command(ctx, toolchain.Cargo, errs.ErrCheckFailed, args...)
	if err != nil {
		return err
	}
	cmd.dir = root
	res, err := cmd.run(ctx)
	out.Output = string(res.stderr)
	if err != nil {
		return err
	}
	name, err := cargo.ReadPackageName(filepath.Join(root, cargo.ManifestName))
	if err != nil {
		return err
	}
	out.Binary = filepath.Join(root, "target", profile, name+exeSuffix())
	return nil
}

func (o *Orchestrator) rustcBuild(ctx context.Context, target string, opts BuildOptions, out *BuildResult) error {
	binary := fileBase(target)
	var args []string
	if opts.DebugInfo {
		binary += "_debug"
		args = append(args, "-g", "-C", "debuginfo=2")
	} else if opts.Release {
		args = append(args, "-O")
	}
	binary += exeSuffix()
	args = append(args, target, "-o", binary)

	cmd, err := o.command(ctx, toolchain.Rustc, errs.ErrCheckFailed, args...)
	if err != nil {
		return err
	}
	cmd.dir = filepath.Dir(target)
	res, err := cmd.run(ctx)
	out.Output = string(res.stderr)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(binary); statErr != nil {
		return fmt.Errorf("%s: binary not created: %w", binary, errs.ErrCheckFailed)
	}
	out.Binary = binary
	return nil
}

// DebugBinary is where a DebugInfo build of sourcePath lands when it is not
// part of a cargo project.
func DebugBinary(sourcePath string) string {
	return fileBase(source.TargetPath(sourcePath)) + "_debug" + exeSuffix()
}
