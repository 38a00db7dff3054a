package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/diag"
	"nubridge/internal/diagfmt"
	"nubridge/internal/errs"
	"nubridge/internal/source"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] <file.nu|directory>...",
	Short: "Translate Nu sources to Rust and refresh their position maps",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompile,
}

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file.nu|directory>...",
	Short: "Compile and run cargo check, printing diagnostics in Nu coordinates",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	compileCmd.Flags().Bool("check", false, "run cargo check after translating (default from auto_check)")
	compileCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	compileCmd.Flags().String("ui", "auto", "progress UI mode (auto|on|off)")
	compileCmd.Flags().Int("jobs", 0, "max parallel compiles (0=jobs from config, else auto)")
	compileCmd.Flags().String("path-mode", "auto", "how to print paths (auto|absolute|relative|basename)")

	checkCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	checkCmd.Flags().Int("jobs", 0, "max parallel compiles (0=jobs from config, else auto)")
	checkCmd.Flags().String("path-mode", "auto", "how to print paths (auto|absolute|relative|basename)")
	checkCmd.Flags().Bool("context", true, "print the offending source line")
}

type compileOptions struct {
	check    *bool
	format   string
	ui       uiMode
	jobs     int
	pathMode diagfmt.PathMode
	context  bool
}

func readCompileOptions(cmd *cobra.Command, forceCheck bool) (compileOptions, error) {
	var opts compileOptions
	var err error
	if forceCheck {
		on := true
		opts.check = &on
	} else if opts.check, err = boolFlag(cmd, "check"); err != nil {
		return opts, err
	}
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return opts, err
	}
	switch opts.format {
	case "pretty", "json":
	default:
		return opts, fmt.Errorf("unsupported format %q (must be pretty or json)", opts.format)
	}
	opts.ui = uiModeOff
	if f := cmd.Flags().Lookup("ui"); f != nil {
		if opts.ui, err = readUIMode(f.Value.String()); err != nil {
			return opts, err
		}
	}
	if opts.jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
		return opts, err
	}
	pm, err := cmd.Flags().GetString("path-mode")
	if err != nil {
		return opts, err
	}
	mode, ok := diagfmt.ParsePathMode(pm)
	if !ok {
		return opts, fmt.Errorf("invalid --path-mode %q", pm)
	}
	opts.pathMode = mode
	opts.context = true
	if f := cmd.Flags().Lookup("context"); f != nil {
		if opts.context, err = cmd.Flags().GetBool("context"); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	return compileAndReport(cmd, args, false)
}

func runCheck(cmd *cobra.Command, args []string) error {
	return compileAndReport(cmd, args, true)
}

func compileAndReport(cmd *cobra.Command, args []string, forceCheck bool) error {
	opts, err := readCompileOptions(cmd, forceCheck)
	if err != nil {
		return err
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	files, err := collectSources(args, a.cfg.Ignore)
	if err != nil {
		return err
	}
	jobs := opts.jobs
	if jobs == 0 {
		jobs = a.cfg.Jobs
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var results []buildpipeline.Result
	if opts.format == "pretty" && shouldUseTUI(opts.ui) {
		results, err = runCompileWithUI(ctx, "nubridge "+cmd.Name(), files, jobs, func(sink buildpipeline.ProgressSink) *buildpipeline.Orchestrator {
			return a.orchestrator(sink, opts.check)
		})
		if err != nil {
			return err
		}
	} else {
		results = a.orchestrator(nil, opts.check).CompileAll(ctx, files, jobs)
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "json":
		if err := renderCompileJSON(out, results, opts, a.cfg.Root); err != nil {
			return err
		}
	default:
		renderCompilePretty(out, cmd.ErrOrStderr(), results, opts, a, useColor(cmd))
		if timings {
			for _, res := range results {
				printStageTimings(out, source.NormalizePath(res.SourcePath), res.Timings)
			}
		}
	}
	if failed > 0 {
		return exitWith(1, "%d of %d file(s) failed", failed, len(results))
	}
	return nil
}

func renderCompilePretty(out, errOut io.Writer, results []buildpipeline.Result, opts compileOptions, a *app, colored bool) {
	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)
	warn := color.New(color.FgYellow)
	for _, res := range results {
		name := source.NormalizePath(res.SourcePath)
		if res.Diagnostics != nil && res.Diagnostics.Len() > 0 {
			res.Diagnostics.Sort()
			if err := diagfmt.Pretty(out, res.Diagnostics, diagfmt.PrettyOpts{
				Color:    colored,
				Context:  opts.context,
				PathMode: opts.pathMode,
				BaseDir:  a.cfg.Root,
				Related:  true,
			}); err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", name, err)
			}
		}
		if !a.quiet {
			for _, w := range res.Warnings {
				fmt.Fprintf(errOut, "%s %s: %s\n", warn.Sprint("warning:"), name, w)
			}
		}
		switch {
		case res.Success:
			if !a.quiet {
				fmt.Fprintf(out, "%s %s -> %s\n", ok.Sprint("compiled"), name, source.NormalizePath(res.TargetPath))
			}
		case errors.Is(res.Err, errs.ErrCheckFailed):
			var errCount, warnCount int
			if res.Diagnostics != nil {
				errCount, warnCount = res.Diagnostics.Counts()
			}
			fmt.Fprintf(out, "%s %s: %d error(s), %d warning(s)\n", bad.Sprint("failed"), name, errCount, warnCount)
		default:
			fmt.Fprintf(out, "%s %s: %s\n", bad.Sprint("failed"), name, oneLine(res.Err))
		}
	}
}

func oneLine(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

type compileJSON struct {
	Source      string                        `json:"source"`
	Target      string                        `json:"target,omitempty"`
	Map         string                        `json:"map,omitempty"`
	Success     bool                          `json:"success"`
	Error       string                        `json:"error,omitempty"`
	Kind        string                        `json:"kind,omitempty"`
	Warnings    []string                      `json:"warnings,omitempty"`
	Diagnostics []diagfmt.DiagnosticJSON      `json:"diagnostics"`
	TimingsMsec map[buildpipeline.Stage]int64 `json:"timings_ms,omitempty"`
}

func renderCompileJSON(out io.Writer, results []buildpipeline.Result, opts compileOptions, root string) error {
	payload := make([]compileJSON, 0, len(results))
	for _, res := range results {
		item := compileJSON{
			Source:   res.SourcePath,
			Target:   res.TargetPath,
			Map:      res.MapPath,
			Success:  res.Success,
			Warnings: res.Warnings,
			Kind:     errs.Kind(res.Err),
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		bag := res.Diagnostics
		if bag == nil {
			bag = diag.NewBag(0)
		}
		item.Diagnostics = diagfmt.BuildDiagnosticsOutput(bag, diagfmt.JSONOpts{PathMode: opts.pathMode, BaseDir: root}).Diagnostics
		if item.Diagnostics == nil {
			item.Diagnostics = []diagfmt.DiagnosticJSON{}
		}
		for _, stage := range buildpipeline.Stages {
			if res.Timings.Has(stage) {
				if item.TimingsMsec == nil {
					item.TimingsMsec = make(map[buildpipeline.Stage]int64)
				}
				item.TimingsMsec[stage] = res.Timings.Duration(stage).Milliseconds()
			}
		}
		payload = append(payload, item)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
