// Package toolchain discovers the external executables nubridge drives:
// the nu2rust/rust2nu translators and the Rust toolchain.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nubridge/internal/errs"
)

// Known tools.
const (
	Nu2Rust = "nu2rust"
	Rust2Nu = "rust2nu"
	Cargo   = "cargo"
	Rustc   = "rustc"
	Rustfmt = "rustfmt"
)

// All lists the tools reported by Versions, in display order.
var All = []string{Nu2Rust, Rust2Nu, Cargo, Rustc, Rustfmt}

// probeTimeout bounds a single `--version` probe.
const probeTimeout = 5 * time.Second

// Options configure a Locator.
type Options struct {
	// Root is the workspace root; <Root>/target/{release,debug} are searched
	// for translator builds.
	Root string
	// Paths holds explicitly configured executables keyed by tool name.
	Paths map[string]string
	// SearchDirs are tried after the workspace builds and before PATH.
	// Nil means DefaultSearchDirs().
	SearchDirs []string
}

// Locator resolves tool names to executable paths and remembers the answer.
type Locator struct {
	root       string
	paths      map[string]string
	searchDirs []string

	mu    sync.Mutex
	found map[string]string
}

// DefaultSearchDirs returns the install locations checked before PATH.
func DefaultSearchDirs() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dirs = append(dirs, filepath.Join(home, ".cargo", "bin"))
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/usr/local/bin", "/usr/bin")
	}
	return dirs
}

// NewLocator creates a Locator.
func NewLocator(opts Options) *Locator {
	dirs := opts.SearchDirs
	if dirs == nil {
		dirs = DefaultSearchDirs()
	}
	paths := make(map[string]string, len(opts.Paths))
	for k, v := range opts.Paths {
		if v = strings.TrimSpace(v); v != "" {
			paths[k] = v
		}
	}
	return &Locator{
		root:       opts.Root,
		paths:      paths,
		searchDirs: dirs,
		found:      make(map[string]string),
	}
}

func exeName(tool string) string {
	if runtime.GOOS == "windows" && filepath.Ext(tool) == "" {
		return tool + ".exe"
	}
	return tool
}

// Find returns the path of tool. Candidates are tried in order: the
// configured path, <root>/target/release, <root>/target/debug, the search
// dirs, then PATH confirmed by `<tool> --version`.
func (l *Locator) Find(ctx context.Context, tool string) (string, error) {
	l.mu.Lock()
	if p, ok := l.found[tool]; ok {
		l.mu.Unlock()
		return p, nil
	}
	l.mu.Unlock()

	var tried []string
	candidates := make([]string, 0, 6)
	if p, ok := l.paths[tool]; ok {
		candidates = append(candidates, p)
	}
	name := exeName(tool)
	if l.root != "" {
		candidates = append(candidates,
			filepath.Join(l.root, "target", "release", name),
			filepath.Join(l.root, "target", "debug", name))
	}
	for _, dir := range l.searchDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}

	for _, c := range candidates {
		tried = append(tried, c)
		if isExecutable(c) {
			return l.remember(tool, c), nil
		}
	}

	tried = append(tried, "PATH")
	if p, err := exec.LookPath(name); err == nil {
		if _, perr := probe(ctx, p); perr == nil {
			return l.remember(tool, p), nil
		}
	}
	return "", &errs.ToolMissingError{Tool: tool, Tried: tried}
}

func (l *Locator) remember(tool, path string) string {
	l.mu.Lock()
	l.found[tool] = path
	l.mu.Unlock()
	return path
}

// Forget drops every remembered path so the next Find searches again.
func (l *Locator) Forget() {
	l.mu.Lock()
	clear(l.found)
	l.mu.Unlock()
}

// Version runs `<tool> --version` and returns the first output line.
func (l *Locator) Version(ctx context.Context, tool string) (path, version string, err error) {
	path, err = l.Find(ctx, tool)
	if err != nil {
		return "", "", err
	}
	version, err = probe(ctx, path)
	return path, version, err
}

// Info describes one tool for `nubridge doctor`.
type Info struct {
	Tool    string `json:"tool"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// Versions probes every tool in All concurrently. Failures are recorded
// per tool and never abort the others.
func (l *Locator) Versions(ctx context.Context) []Info {
	out := make([]Info, len(All))
	g, gctx := errgroup.WithContext(ctx)
	for i, tool := range All {
		g.Go(func() error {
			path, version, err := l.Version(gctx, tool)
			out[i] = Info{Tool: tool, Path: path, Version: version, Err: err}
			if err != nil {
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail
	return out
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return fi.Mode().Perm()&0o111 != 0
}

func probe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version") // #nosec G204 -- path comes from discovery
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &errs.CommandError{
			Name:     filepath.Base(path),
			Args:     []string{"--version"},
			ExitCode: code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Kind:     errs.ErrToolMissing,
			Err:      err,
		}
	}
	line, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	return strings.TrimSpace(line), nil
}
