package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/ui"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch m := uiMode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// shouldUseTUI resolves auto against whether stdout is a terminal.
func shouldUseTUI(mode uiMode) bool {
	if mode == uiModeAuto {
		return isTerminal(os.Stdout)
	}
	return mode == uiModeOn
}

// runCompileWithUI compiles files while a progress view renders the
// pipeline events. The orchestrator must report into the given sink.
func runCompileWithUI(ctx context.Context, title string, files []string, jobs int, build func(buildpipeline.ProgressSink) *buildpipeline.Orchestrator) ([]buildpipeline.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcome := make(chan []buildpipeline.Result, 1)

	orch := build(buildpipeline.ChannelSink{Ch: events})
	go func() {
		results := orch.CompileAll(ctx, files, jobs)
		close(events)
		outcome <- results
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, files, events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// The view may quit early (Ctrl-C or an error); the pipeline must not
	// block on a full channel.
	go func() {
		for range events {
		}
	}()
	return <-outcome, uiErr
}
