package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nubridge/internal/config"
	"nubridge/internal/launch"
	"nubridge/internal/lsp"
	"nubridge/internal/version"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the nubridge language server over stdio",
	Args:  cobra.NoArgs,
	RunE:  runLSP,
}

func runLSP(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Pipeline:        a.orchestrator(nil, nil),
		Maps:            a.maps,
		Bus:             a.bus,
		AutoCompile:     a.cfg.AutoCompile,
		Highlight:       a.cfg.Highlight.Duration,
		SaveAutoCompile: config.SetAutoCompile,
		Extensions: func() []string {
			installed, err := launch.InstalledExtensions(launch.DefaultExtensionDirs())
			if err != nil {
				return nil
			}
			return installed
		},
		Version: version.Short(),
		Tracer:  a.tracer,
		Log:     os.Stderr,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
