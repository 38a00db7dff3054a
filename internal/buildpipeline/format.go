package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nubridge/internal/errs"
	"nubridge/internal/source"
	"nubridge/internal/toolchain"
	"nubridge/internal/trace"
)

// tempPaths returns the scratch files used to format path:
// .<base>.temp.rs and .<base>.temp.nu next to it.
func tempPaths(path string) (rs, nu string) {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, "."+base+".temp"+source.TargetExt),
		filepath.Join(dir, "."+base+".temp"+source.SourceExt)
}

// Format returns the formatted text of path as it is on disk, without
// touching the file.
func (o *Orchestrator) Format(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user file
	if err != nil {
		return nil, err
	}
	return o.FormatText(ctx, path, data)
}

// FormatText formats text as the contents of path, which may differ from
// the file on disk. A .nu text makes a round trip nu2rust → rustfmt →
// rust2nu through scratch files next to path; a .rs text only goes
// through rustfmt. Scratch files are removed on every outcome.
func (o *Orchestrator) FormatText(ctx context.Context, path string, text []byte) (formatted []byte, err error) {
	path = source.Canonical(path)
	tmpRs, tmpNu := tempPaths(path)
	defer func() {
		for _, p := range []string{tmpRs, tmpNu, source.MapPath(tmpRs)} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				trace.Error(trace.FromContext(ctx), "format", "cleanup", rmErr)
			}
		}
	}()

	switch {
	case source.IsSource(path):
		if err := os.WriteFile(tmpNu, text, 0o600); err != nil {
			return nil, err
		}
		if err := o.step(ctx, toolchain.Nu2Rust, path, tmpNu, "-o", tmpRs, "-f"); err != nil {
			return nil, err
		}
		if err := o.step(ctx, toolchain.Rustfmt, path, tmpRs); err != nil {
			return nil, err
		}
		if err := o.step(ctx, toolchain.Rust2Nu, path, tmpRs, "-o", tmpNu); err != nil {
			return nil, err
		}
		return os.ReadFile(tmpNu) // #nosec G304 -- scratch file we just wrote
	case source.IsTarget(path):
		if err := os.WriteFile(tmpRs, text, 0o600); err != nil {
			return nil, err
		}
		if err := o.step(ctx, toolchain.Rustfmt, path, tmpRs); err != nil {
			return nil, err
		}
		return os.ReadFile(tmpRs) // #nosec G304 -- scratch file we just wrote
	default:
		return nil, fmt.Errorf("%s: cannot format files of this type: %w", path, errs.ErrConversionFailed)
	}
}

func (o *Orchestrator) step(ctx context.Context, tool, path string, args ...string) error {
	cmd, err := o.command(ctx, tool, errs.ErrConversionFailed, args...)
	if err != nil {
		return err
	}
	cmd.dir = filepath.Dir(path)
	_, err = cmd.run(ctx)
	return err
}

// FormatFile formats path and writes the result back when it changed.
func (o *Orchestrator) FormatFile(ctx context.Context, path string) (changed bool, err error) {
	formatted, err := o.Format(ctx, path)
	if err != nil {
		return false, err
	}
	current, err := os.ReadFile(path) // #nosec G304 -- user file
	if err != nil {
		return false, err
	}
	if string(current) == string(formatted) {
		return false, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(path, formatted, fi.Mode().Perm())
}
