package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nubridge/internal/autocompile"
	"nubridge/internal/buildpipeline"
	"nubridge/internal/diagfmt"
	"nubridge/internal/source"
	"nubridge/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] [dir]",
	Short: "Recompile .nu files as they change on disk",
	Long: `Watch a directory tree and recompile every .nu file that changes.
Paths matched by .gitignore, the ignore setting, target/ and hidden
directories are skipped. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("check", false, "run cargo check after each compile (default from auto_check)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	check, err := boolFlag(cmd, "check")
	if err != nil {
		return err
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	root := a.cfg.Root
	if len(args) == 1 {
		root = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(watcher.Options{
		Root:     root,
		Debounce: a.cfg.Debounce.Duration,
		Ignore:   a.cfg.Ignore,
		Tracer:   a.tracer,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	out := cmd.OutOrStdout()
	colorOn := useColor(cmd)
	var outMu sync.Mutex
	report := func(_ context.Context, res buildpipeline.Result) {
		outMu.Lock()
		defer outMu.Unlock()
		name := source.NormalizePath(res.SourcePath)
		if bag := res.Diagnostics; bag != nil && bag.Len() > 0 {
			bag.Sort()
			if err := diagfmt.Pretty(out, bag, diagfmt.PrettyOpts{Color: colorOn, BaseDir: a.cfg.Root}); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to render diagnostics: %v\n", err)
			}
		}
		if res.Err != nil {
			fmt.Fprintf(out, "%s %s: %s\n", color.New(color.FgRed, color.Bold).Sprint("failed"), name, oneLine(res.Err))
			return
		}
		if !a.quiet {
			fmt.Fprintf(out, "%s %s → %s\n", color.New(color.FgGreen, color.Bold).Sprint("compiled"), name, source.NormalizePath(res.TargetPath))
		}
	}

	ctrl := autocompile.New(a.orchestrator(nil, check),
		autocompile.WithEnabled(true),
		autocompile.WithTracer(a.tracer),
		autocompile.WithResultHandler(report),
	)
	if err := ctrl.Attach(a.bus); err != nil {
		return err
	}
	defer ctrl.Close()

	if !a.quiet {
		fmt.Fprintf(out, "watching %s (Ctrl-C to stop)\n", w.Root())
	}
	err = w.Run(ctx, a.bus)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
