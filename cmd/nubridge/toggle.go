package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nubridge/internal/config"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle-auto-compile",
	Short: "Flip auto_compile in the project configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := cmd.Root().PersistentFlags().GetString("dir")
		if err != nil {
			return err
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		on := !cfg.AutoCompile
		written, err := config.SetAutoCompile(cfg.Root, on)
		if err != nil {
			return err
		}
		state := "disabled"
		if on {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Nu auto-compile %s (%s)\n", state, written)
		return nil
	},
}
