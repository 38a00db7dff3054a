package main

import (
	"github.com/spf13/cobra"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/config"
	"nubridge/internal/event"
	"nubridge/internal/sourcemap"
	"nubridge/internal/toolchain"
	"nubridge/internal/trace"
)

// app bundles the components every command builds from the configuration.
type app struct {
	cfg     config.Config
	tracer  trace.Tracer
	tools   *toolchain.Locator
	maps    *sourcemap.Index
	bus     *event.Bus
	maxDiag int
	quiet   bool
}

func loadApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Root().PersistentFlags()
	dir, err := flags.GetString("dir")
	if err != nil {
		return nil, err
	}
	maxDiag, err := flags.GetInt("max-diagnostics")
	if err != nil {
		return nil, err
	}
	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	tr := trace.FromContext(cmd.Context())
	trace.Point(tr, trace.ScopeDriver, "driver", "config", cfg.Path, "root", cfg.Root)

	// The disk cache only speeds up map loads; run without it when the
	// directory cannot be created.
	disk, err := sourcemap.OpenDiskCache(cfg.CacheDir, "nubridge")
	if err != nil {
		trace.Error(tr, "driver", "disk-cache", err)
		disk = nil
	}
	maps, err := sourcemap.NewIndex(sourcemap.Options{Disk: disk, Tracer: tr})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		tracer: tr,
		tools: toolchain.NewLocator(toolchain.Options{
			Root:  cfg.Root,
			Paths: cfg.ToolPaths(),
		}),
		maps:    maps,
		bus:     event.NewBus(event.WithErrorHandler(func(err error) { trace.Error(tr, "driver", "event", err) })),
		maxDiag: maxDiag,
		quiet:   quiet,
	}, nil
}

// orchestrator builds a compile orchestrator reporting to progress (may be
// nil). check overrides auto_check when non-nil.
func (a *app) orchestrator(progress buildpipeline.ProgressSink, check *bool) *buildpipeline.Orchestrator {
	on := a.cfg.AutoCheck
	if check != nil {
		on = *check
	}
	return buildpipeline.New(buildpipeline.Options{
		Tools:          a.tools,
		Maps:           a.maps,
		Check:          on,
		MaxDiagnostics: a.maxDiag,
		Progress:       progress,
		OnComplete:     buildpipeline.PublishCompleted(a.bus),
	})
}

// boolFlag returns a pointer to the flag value when it was set explicitly.
func boolFlag(cmd *cobra.Command, name string) (*bool, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
