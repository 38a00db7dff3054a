// Package launch produces editor debug launch configurations for a debug
// build of a .nu program. The debugger runs the Rust binary; a source map
// entry points the editor from the .rs file back to the .nu file.
package launch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"nubridge/internal/source"
)

// Debugger is a debug adapter type understood by the editor.
type Debugger string

const (
	LLDB     Debugger = "lldb"     // CodeLLDB
	CppDbg   Debugger = "cppdbg"   // C/C++ extension, gdb or lldb MI
	CppVsDbg Debugger = "cppvsdbg" // C/C++ extension, MSVC
)

// Extension ids that provide the adapters.
const (
	CodeLLDBExtension = "vadimcn.vscode-lldb"
	CppToolsExtension = "ms-vscode.cpptools"
)

// DefaultPreLaunchTask names the editor task that builds the debug binary.
const DefaultPreLaunchTask = "nubridge: build debug"

// ParseDebugger accepts the adapter names above.
func ParseDebugger(s string) (Debugger, error) {
	switch d := Debugger(strings.ToLower(strings.TrimSpace(s))); d {
	case LLDB, CppDbg, CppVsDbg:
		return d, nil
	default:
		return "", fmt.Errorf("unknown debugger %q (want lldb, cppdbg or cppvsdbg)", s)
	}
}

// Detect picks an adapter from the installed extension ids. CodeLLDB wins;
// with only the C/C++ extension the choice follows goos.
func Detect(installed []string, goos string) (Debugger, bool) {
	has := func(id string) bool {
		for _, ext := range installed {
			if strings.EqualFold(ext, id) {
				return true
			}
		}
		return false
	}
	if has(CodeLLDBExtension) {
		return LLDB, true
	}
	if has(CppToolsExtension) {
		switch goos {
		case "windows":
			return CppVsDbg, true
		case "darwin":
			return LLDB, true
		default:
			return CppDbg, true
		}
	}
	return "", false
}

// SetupCommand is a cppdbg MI command run before launch.
type SetupCommand struct {
	Description    string `json:"description"`
	Text           string `json:"text"`
	IgnoreFailures bool   `json:"ignoreFailures"`
}

// Config is one launch.json configuration. Adapter-specific fields are left
// empty for the other adapters.
type Config struct {
	Type          string   `json:"type"`
	Request       string   `json:"request"`
	Name          string   `json:"name"`
	Program       string   `json:"program"`
	Args          []string `json:"args"`
	Cwd           string   `json:"cwd"`
	PreLaunchTask string   `json:"preLaunchTask,omitempty"`

	StopOnEntry     *bool             `json:"stopOnEntry,omitempty"`
	SourceLanguages []string          `json:"sourceLanguages,omitempty"`
	Terminal        string            `json:"terminal,omitempty"`
	SourceMap       map[string]string `json:"sourceMap,omitempty"`

	StopAtEntry   *bool             `json:"stopAtEntry,omitempty"`
	MIMode        string            `json:"MIMode,omitempty"`
	SetupCommands []SetupCommand    `json:"setupCommands,omitempty"`
	SourceFileMap map[string]string `json:"sourceFileMap,omitempty"`
}

// Request describes the program to debug.
type Request struct {
	Source        string // .nu file
	Binary        string // debug build of the translated program
	Args          []string
	Cwd           string // defaults to the source directory
	Debugger      Debugger
	PreLaunchTask string
	GOOS          string // defaults to runtime.GOOS
}

// New builds the configuration for req.
func New(req Request) (Config, error) {
	if !source.IsSource(req.Source) {
		return Config{}, fmt.Errorf("debug target must be a .nu file: %s", req.Source)
	}
	if strings.TrimSpace(req.Binary) == "" {
		return Config{}, fmt.Errorf("%s: no debug binary", req.Source)
	}
	nu, err := filepath.Abs(req.Source)
	if err != nil {
		return Config{}, err
	}
	rs := source.TargetPath(nu)
	cwd := req.Cwd
	if cwd == "" {
		cwd = filepath.Dir(nu)
	}
	goos := req.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	args := req.Args
	if args == nil {
		args = []string{}
	}
	no := false
	cfg := Config{
		Request:       "launch",
		Program:       req.Binary,
		Args:          args,
		Cwd:           cwd,
		PreLaunchTask: req.PreLaunchTask,
	}
	mapping := map[string]string{rs: nu}

	switch req.Debugger {
	case LLDB:
		cfg.Type = string(LLDB)
		cfg.Name = "Debug Nu File (LLDB)"
		cfg.StopOnEntry = &no
		cfg.SourceLanguages = []string{"rust"}
		cfg.Terminal = "integrated"
		cfg.SourceMap = mapping
	case CppDbg:
		cfg.Type = string(CppDbg)
		cfg.Name = "Debug Nu File (GDB)"
		cfg.StopAtEntry = &no
		cfg.MIMode = "gdb"
		if goos == "darwin" {
			cfg.MIMode = "lldb"
		}
		cfg.SetupCommands = []SetupCommand{
			{Description: "Enable pretty-printing for gdb", Text: "-enable-pretty-printing", IgnoreFailures: true},
			{Description: "Set breakpoint at main", Text: "-break-insert " + filepath.Base(rs) + ":main"},
		}
		cfg.SourceFileMap = mapping
	case CppVsDbg:
		cfg.Type = string(CppVsDbg)
		cfg.Name = "Debug Nu File (MSVC)"
		cfg.StopAtEntry = &no
		cfg.SourceFileMap = mapping
	default:
		return Config{}, fmt.Errorf("unknown debugger %q", req.Debugger)
	}
	return cfg, nil
}

// File is the launch.json document.
type File struct {
	Version        string   `json:"version"`
	Configurations []Config `json:"configurations"`
}

// Marshal renders configs as an indented launch.json document.
func Marshal(configs ...Config) ([]byte, error) {
	if configs == nil {
		configs = []Config{}
	}
	data, err := json.MarshalIndent(File{Version: "0.2.0", Configurations: configs}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
