package cargo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the cargo manifest file name.
const ManifestName = "Cargo.toml"

// FindManifest walks up from start (a file or directory) to locate
// Cargo.toml.
func FindManifest(start string) (path string, ok bool, err error) {
	if start == "" {
		start = "."
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	if fi, statErr := os.Stat(dir); statErr == nil && !fi.IsDir() {
		dir = filepath.Dir(dir)
	} else if statErr != nil && filepath.Ext(dir) != "" {
		dir = filepath.Dir(dir)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// FindRoot returns the directory holding the nearest Cargo.toml.
func FindRoot(start string) (root string, ok bool, err error) {
	manifest, ok, err := FindManifest(start)
	if err != nil || !ok {
		return "", ok, err
	}
	return filepath.Dir(manifest), true, nil
}

type manifestFile struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
}

// ReadPackageName returns the binary name cargo builds for the manifest:
// the first [[bin]] name, else [package].name.
func ReadPackageName(manifestPath string) (string, error) {
	var mf manifestFile
	meta, err := toml.DecodeFile(manifestPath, &mf)
	if err != nil {
		return "", fmt.Errorf("%s: %w", manifestPath, err)
	}
	for _, b := range mf.Bin {
		if name := strings.TrimSpace(b.Name); name != "" {
			return name, nil
		}
	}
	if !meta.IsDefined("package", "name") || strings.TrimSpace(mf.Package.Name) == "" {
		return "", fmt.Errorf("%s: missing [package].name", manifestPath)
	}
	return strings.TrimSpace(mf.Package.Name), nil
}

// InSrc reports whether file lives under <root>/src, which is where cargo
// picks up sources from.
func InSrc(root, file string) bool {
	rel, err := filepath.Rel(filepath.Join(root, "src"), file)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
