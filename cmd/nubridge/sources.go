package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"nubridge/internal/source"
	"nubridge/internal/watcher"
)

// collectSources expands args into .nu files. Directories are walked with
// the same filter the watcher uses; explicit files are taken as given.
func collectSources(args, ignore []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		p = source.Canonical(p)
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		root := source.Canonical(arg)
		filter, err := watcher.NewFilter(root, ignore)
		if err != nil {
			return nil, err
		}
		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && filter.SkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if filter.Reports(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found", source.SourceExt)
	}
	return files, nil
}
