package source

import (
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// SourceExt is the extension of the Nu source representation.
	SourceExt = ".nu"
	// TargetExt is the extension of the generated Rust file.
	TargetExt = ".rs"
	// MapSuffix is appended to the target path to locate its position map.
	MapSuffix = ".map"
)

// caseInsensitiveFS reports whether path comparison folds case on this host.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

func normalizePath(p string) string {
	// one form across platforms for stable diffs
	return filepath.ToSlash(filepath.Clean(p))
}

// NormalizePath returns the comparison key of p: cleaned, slash separated,
// NFC composed and, on case-insensitive hosts, lower-cased.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	out := norm.NFC.String(normalizePath(p))
	if caseInsensitiveFS {
		out = strings.ToLower(out)
	}
	return out
}

// SamePath compares two paths after NormalizePath.
func SamePath(a, b string) bool {
	return NormalizePath(a) == NormalizePath(b)
}

// Canonical returns an absolute, cleaned path; relative paths are resolved
// against the working directory. Errors fall back to the cleaned input.
func Canonical(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// RelativePath returns path relative to base when it lives under base,
// otherwise the normalized absolute path.
func RelativePath(path, base string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if base == "" {
		return normalizePath(absPath), nil
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return normalizePath(absPath), nil
	}
	return normalizePath(rel), nil
}

// IsSource reports whether p names a Nu source file.
func IsSource(p string) bool {
	return strings.EqualFold(filepath.Ext(p), SourceExt)
}

// IsTarget reports whether p names a Rust target file.
func IsTarget(p string) bool {
	return strings.EqualFold(filepath.Ext(p), TargetExt)
}

func swapExt(p, ext string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}

// TargetPath derives the generated .rs path next to a .nu source.
func TargetPath(sourcePath string) string {
	return swapExt(sourcePath, TargetExt)
}

// SourcePathFor derives the .nu path a generated .rs file came from.
func SourcePathFor(targetPath string) string {
	return swapExt(targetPath, SourceExt)
}

// MapPath derives the position map path of a generated .rs file.
func MapPath(targetPath string) string {
	return targetPath + MapSuffix
}

// MapPathForSource is MapPath(TargetPath(sourcePath)).
func MapPathForSource(sourcePath string) string {
	return MapPath(TargetPath(sourcePath))
}
