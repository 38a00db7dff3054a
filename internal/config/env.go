package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix marks variables that override file settings.
const EnvPrefix = "NUBRIDGE_"

// readDotEnv parses <root>/.env without touching the process environment.
func readDotEnv(root string) (map[string]string, error) {
	path := filepath.Join(root, ".env")
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vals, nil
}

// envLookup prefers the process environment over .env values.
func envLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// applyEnv overlays NUBRIDGE_* variables and reports whether any was set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) (bool, error) {
	applied := false
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		if ok && v != "" {
			applied = true
			return v, true
		}
		return "", false
	}

	var problems []error
	bad := func(name string, err error) {
		problems = append(problems, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
	}

	for name, dst := range map[string]*bool{
		"AUTO_COMPILE": &cfg.AutoCompile,
		"AUTO_CHECK":   &cfg.AutoCheck,
	} {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				bad(name, err)
				continue
			}
			*dst = b
		}
	}
	for name, dst := range map[string]*string{
		"NU2RUST_PATH": &cfg.Nu2RustPath,
		"RUST2NU_PATH": &cfg.Rust2NuPath,
		"CARGO_PATH":   &cfg.CargoPath,
		"RUSTC_PATH":   &cfg.RustcPath,
		"RUSTFMT_PATH": &cfg.RustfmtPath,
		"CACHE_DIR":    &cfg.CacheDir,
	} {
		if v, ok := get(name); ok {
			*dst = firstNonEmpty(v, *dst)
		}
	}
	for name, dst := range map[string]*Duration{
		"DEBOUNCE":  &cfg.Debounce,
		"HIGHLIGHT": &cfg.Highlight,
	} {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				bad(name, err)
				continue
			}
			dst.Duration = d
		}
	}
	if v, ok := get("JOBS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			bad("JOBS", err)
		} else {
			cfg.Jobs = n
		}
	}
	if v, ok := get("IGNORE"); ok {
		cfg.Ignore = cfg.Ignore[:0:0]
		for _, g := range strings.Split(v, ",") {
			if g = strings.TrimSpace(g); g != "" {
				cfg.Ignore = append(cfg.Ignore, g)
			}
		}
	}
	return applied, errors.Join(problems...)
}
