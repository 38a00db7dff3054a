package launch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensionDirs lists editor extension directories under the home
// directory.
func DefaultExtensionDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}
	var dirs []string
	for _, d := range []string{".vscode", ".vscode-server", ".vscode-oss", ".cursor"} {
		dirs = append(dirs, filepath.Join(home, d, "extensions"))
	}
	return dirs
}

// InstalledExtensions returns the extension ids found in dirs. Directory
// names look like "publisher.name-1.2.3"; the version suffix is dropped.
// Missing directories are skipped.
func InstalledExtensions(dirs []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			seen[extensionID(e.Name())] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func extensionID(dirName string) string {
	name := strings.ToLower(dirName)
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '-' && i+1 < len(name) && name[i+1] >= '0' && name[i+1] <= '9' {
			return name[:i]
		}
	}
	return name
}
