// Package config loads nubridge settings from nubridge.toml (or
// nubridge.yaml), a project .env file and NUBRIDGE_* environment variables.
// Later sources override earlier ones.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"nubridge/internal/toolchain"
)

// Defaults for the time-based settings.
const (
	DefaultDebounce  = 500 * time.Millisecond
	DefaultHighlight = 500 * time.Millisecond
)

// Duration is a time.Duration written as "500ms" in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if err := d.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// Config is the merged configuration.
type Config struct {
	AutoCompile bool     `toml:"auto_compile" yaml:"auto_compile"`
	AutoCheck   bool     `toml:"auto_check" yaml:"auto_check"`
	Nu2RustPath string   `toml:"nu2rust_path" yaml:"nu2rust_path"`
	Rust2NuPath string   `toml:"rust2nu_path" yaml:"rust2nu_path"`
	CargoPath   string   `toml:"cargo_path" yaml:"cargo_path"`
	RustcPath   string   `toml:"rustc_path" yaml:"rustc_path"`
	RustfmtPath string   `toml:"rustfmt_path" yaml:"rustfmt_path"`
	Debounce    Duration `toml:"debounce" yaml:"debounce"`
	Highlight   Duration `toml:"highlight" yaml:"highlight"`
	Ignore      []string `toml:"ignore" yaml:"ignore"`
	CacheDir    string   `toml:"cache_dir" yaml:"cache_dir"`
	Jobs        int      `toml:"jobs" yaml:"jobs"`

	// Path is the config file that was read, empty when none exists.
	Path string `toml:"-" yaml:"-"`
	// Root is the project root: the config file's directory, or the start
	// directory when there is no file.
	Root string `toml:"-" yaml:"-"`
	// Sources lists where values came from, in application order.
	Sources []string `toml:"-" yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		AutoCompile: true,
		AutoCheck:   true,
		Debounce:    Duration{DefaultDebounce},
		Highlight:   Duration{DefaultHighlight},
	}
}

// Load resolves the configuration for startDir.
func Load(startDir string) (Config, error) {
	cfg := Defaults()
	path, ok, err := FindConfig(startDir)
	if err != nil {
		return Config{}, err
	}
	if ok {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Path = path
		cfg.Root = filepath.Dir(path)
		cfg.Sources = append(cfg.Sources, path)
	} else {
		if startDir == "" {
			startDir = "."
		}
		root, err := filepath.Abs(startDir)
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve start directory: %w", err)
		}
		cfg.Root = root
	}

	dotenv, err := readDotEnv(cfg.Root)
	if err != nil {
		return Config{}, err
	}
	if len(dotenv) > 0 {
		cfg.Sources = append(cfg.Sources, filepath.Join(cfg.Root, ".env"))
	}
	applied, envErr := applyEnv(&cfg, envLookup(dotenv))
	if applied {
		cfg.Sources = append(cfg.Sources, "environment")
	}

	cfg.resolvePaths()
	if err := errors.Join(envErr, cfg.Validate()); err != nil {
		if cfg.Path != "" {
			return Config{}, fmt.Errorf("%s: %w", cfg.Path, err)
		}
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".toml":
		return decodeTOML(path, cfg)
	default:
		return decodeYAML(path, cfg)
	}
}

func decodeTOML(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("%s: unknown key(s): %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("cache_dir") && strings.TrimSpace(cfg.CacheDir) == "" {
		return fmt.Errorf("%s: cache_dir must not be empty when set", path)
	}
	return nil
}

func decodeYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%s: failed to parse YAML: %w", path, err)
	}
	return nil
}

// resolvePaths makes relative tool and cache paths relative to Root.
func (c *Config) resolvePaths() {
	for _, p := range []*string{&c.Nu2RustPath, &c.Rust2NuPath, &c.CargoPath, &c.RustcPath, &c.RustfmtPath, &c.CacheDir} {
		v := strings.TrimSpace(*p)
		if v != "" && !filepath.IsAbs(v) && c.Root != "" {
			v = filepath.Join(c.Root, v)
		}
		*p = v
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var problems []error
	if c.Debounce.Duration <= 0 {
		problems = append(problems, fmt.Errorf("debounce must be positive, got %s", c.Debounce))
	}
	if c.Highlight.Duration <= 0 {
		problems = append(problems, fmt.Errorf("highlight must be positive, got %s", c.Highlight))
	}
	if c.Jobs < 0 {
		problems = append(problems, fmt.Errorf("jobs must not be negative, got %d", c.Jobs))
	}
	for _, g := range c.Ignore {
		if _, err := filepath.Match(g, ""); err != nil {
			problems = append(problems, fmt.Errorf("ignore pattern %q: %w", g, err))
		}
	}
	return errors.Join(problems...)
}

// ToolPaths returns configured executables keyed by tool name, for
// toolchain.Options.Paths.
func (c Config) ToolPaths() map[string]string {
	out := make(map[string]string, 5)
	for tool, p := range map[string]string{
		toolchain.Nu2Rust: c.Nu2RustPath,
		toolchain.Rust2Nu: c.Rust2NuPath,
		toolchain.Cargo:   c.CargoPath,
		toolchain.Rustc:   c.RustcPath,
		toolchain.Rustfmt: c.RustfmtPath,
	} {
		if p != "" {
			out[tool] = p
		}
	}
	return out
}
