package lsp

import (
	"os"
	"path/filepath"

	"nubridge/internal/config"
)

// projectRoot picks the directory whose nubridge config governs path: the
// config root above the workspace, else above the file, else the workspace.
func projectRoot(workspaceRoot, path string) string {
	for _, start := range []string{workspaceRoot, path} {
		if dir := resolveStartDir(start); dir != "" {
			if found, ok, err := config.FindProjectRoot(dir); err == nil && ok {
				return found
			}
		}
	}
	if workspaceRoot != "" {
		return workspaceRoot
	}
	return resolveStartDir(path)
}

func resolveStartDir(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
