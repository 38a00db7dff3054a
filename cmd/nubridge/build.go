package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/diagfmt"
	"nubridge/internal/errs"
	"nubridge/internal/source"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] <file.nu>",
	Short: "Compile a Nu source and build an executable",
	Long: `Compile a Nu source and build an executable from the generated Rust.
Inside a cargo project (the file lives under <crate>/src) cargo build is
used; otherwise rustc builds the file directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().Bool("release", false, "build with optimizations")
	buildCmd.Flags().Bool("debug-info", false, "build with full debug info for a debugger session")
	buildCmd.Flags().Bool("check", false, "run cargo check before building (default from auto_check)")
	buildCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type buildJSON struct {
	Source  string `json:"source"`
	Binary  string `json:"binary,omitempty"`
	Cargo   bool   `json:"cargo"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	release, err := cmd.Flags().GetBool("release")
	if err != nil {
		return err
	}
	debugInfo, err := cmd.Flags().GetBool("debug-info")
	if err != nil {
		return err
	}
	if release && debugInfo {
		return fmt.Errorf("--release and --debug-info are mutually exclusive")
	}
	check, err := boolFlag(cmd, "check")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	if !source.IsSource(args[0]) {
		return fmt.Errorf("%s: not a %s file", args[0], source.SourceExt)
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	path := source.Canonical(args[0])
	res, buildErr := a.orchestrator(nil, check).Build(cmd.Context(), path, buildpipeline.BuildOptions{
		Release:   release,
		DebugInfo: debugInfo,
	})

	out := cmd.OutOrStdout()
	if format == "json" {
		payload := buildJSON{
			Source:  path,
			Binary:  res.Binary,
			Cargo:   res.Cargo,
			Success: buildErr == nil,
			Kind:    errs.Kind(buildErr),
		}
		if buildErr != nil {
			payload.Error = buildErr.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return err
		}
		if buildErr != nil {
			return exitWith(1, "")
		}
		return nil
	}

	if bag := res.Compile.Diagnostics; bag != nil && bag.Len() > 0 {
		bag.Sort()
		if err := diagfmt.Pretty(out, bag, diagfmt.PrettyOpts{Color: useColor(cmd), Context: true, BaseDir: a.cfg.Root, Related: true}); err != nil {
			return err
		}
	}
	if buildErr != nil {
		if res.Output != "" && !errors.Is(buildErr, errs.ErrCheckFailed) {
			fmt.Fprintln(cmd.ErrOrStderr(), res.Output)
		}
		return exitWith(1, "Build failed: %s", oneLine(buildErr))
	}
	if timings {
		printStageTimings(out, source.NormalizePath(path), res.Compile.Timings)
	}
	if !a.quiet {
		kind := "rustc"
		if res.Cargo {
			kind = "cargo"
		}
		fmt.Fprintf(out, "%s %s (%s)\n", color.New(color.FgGreen, color.Bold).Sprint("built"), res.Binary, kind)
	}
	return nil
}
