package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"nubridge/internal/source"
)

// Filter decides which paths under a root are watched and reported.
type Filter struct {
	root   string
	ignore *gitignore.GitIgnore
}

// NewFilter compiles <root>/.gitignore plus extra gitignore-style patterns.
func NewFilter(root string, extra []string) (*Filter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	lines := append([]string{"target/"}, extra...)
	gi, err := gitignore.CompileIgnoreFileAndLines(filepath.Join(abs, ".gitignore"), lines...)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		gi = gitignore.CompileIgnoreLines(lines...)
	}
	return &Filter{root: abs, ignore: gi}, nil
}

// Root returns the absolute root.
func (f *Filter) Root() string { return f.root }

func (f *Filter) rel(path string) (string, bool) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// SkipDir reports whether a directory and everything below it is skipped.
func (f *Filter) SkipDir(path string) bool {
	rel, ok := f.rel(path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || base == "target" {
		return true
	}
	return f.ignore.MatchesPath(rel + "/")
}

// Reports reports whether a file change should be published.
func (f *Filter) Reports(path string) bool {
	if !source.IsSource(path) {
		return false
	}
	rel, ok := f.rel(path)
	if !ok {
		return false
	}
	parts := strings.Split(rel, "/")
	if strings.HasPrefix(parts[len(parts)-1], ".") {
		return false
	}
	for _, dir := range parts[:len(parts)-1] {
		if strings.HasPrefix(dir, ".") || dir == "target" {
			return false
		}
	}
	return !f.ignore.MatchesPath(rel)
}
