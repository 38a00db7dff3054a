package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/launch"
	"nubridge/internal/source"
)

var launchCmd = &cobra.Command{
	Use:   "launch [flags] <file.nu>",
	Short: "Print a launch.json debug configuration for a Nu source",
	Args:  cobra.ExactArgs(1),
	RunE:  runLaunch,
}

func init() {
	launchCmd.Flags().String("debugger", "", "debug adapter (lldb|cppdbg|cppvsdbg); detected from installed extensions when empty")
	launchCmd.Flags().Bool("build", false, "build the debug binary now instead of adding a preLaunchTask")
	launchCmd.Flags().StringSlice("arg", nil, "program argument (repeatable)")
	launchCmd.Flags().String("cwd", "", "working directory of the debuggee (default: source directory)")
	launchCmd.Flags().StringP("output", "o", "", "write the document to this file instead of stdout")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	debuggerName, err := cmd.Flags().GetString("debugger")
	if err != nil {
		return err
	}
	build, err := cmd.Flags().GetBool("build")
	if err != nil {
		return err
	}
	progArgs, err := cmd.Flags().GetStringSlice("arg")
	if err != nil {
		return err
	}
	cwd, err := cmd.Flags().GetString("cwd")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if !source.IsSource(args[0]) {
		return fmt.Errorf("debug target must be a %s file: %s", source.SourceExt, args[0])
	}
	path := source.Canonical(args[0])

	var dbg launch.Debugger
	if debuggerName != "" {
		if dbg, err = launch.ParseDebugger(debuggerName); err != nil {
			return err
		}
	} else {
		installed, err := launch.InstalledExtensions(launch.DefaultExtensionDirs())
		if err != nil {
			return err
		}
		var ok bool
		if dbg, ok = launch.Detect(installed, runtime.GOOS); !ok {
			return fmt.Errorf("no debugger extension found; install CodeLLDB or the C/C++ extension, or pass --debugger")
		}
	}

	req := launch.Request{Source: path, Args: progArgs, Cwd: cwd, Debugger: dbg}
	if build {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		res, err := a.orchestrator(nil, nil).Build(cmd.Context(), path, buildpipeline.BuildOptions{DebugInfo: true})
		if err != nil {
			return fmt.Errorf("Build failed: %w", err)
		}
		req.Binary = res.Binary
	} else {
		req.Binary = buildpipeline.DebugBinary(path)
		req.PreLaunchTask = launch.DefaultPreLaunchTask
	}

	cfg, err := launch.New(req)
	if err != nil {
		return err
	}
	data, err := launch.Marshal(cfg)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644) // #nosec G306 -- launch.json is not secret
}
