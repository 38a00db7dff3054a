package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nubridge/internal/source"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [flags] <file.nu|file.rs>...",
	Short: "Format Nu sources through nu2rust, rustfmt and rust2nu",
	Long: `Format .nu files by a round trip through nu2rust, rustfmt and rust2nu,
and .rs files with rustfmt alone. The formatted text goes to stdout unless
--write or --check is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFmt,
}

func init() {
	fmtCmd.Flags().BoolP("write", "w", false, "rewrite files in place")
	fmtCmd.Flags().Bool("check", false, "check if files are properly formatted")
	fmtCmd.Flags().String("format", "text", "output format (text|json)")
}

type fmtResult struct {
	Path    string `json:"path"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
	text    []byte
}

func runFmt(cmd *cobra.Command, args []string) error {
	write, err := cmd.Flags().GetBool("write")
	if err != nil {
		return err
	}
	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return err
	}
	outputFormat, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if write && check {
		return fmt.Errorf("fmt: --write cannot be used with --check")
	}
	switch outputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("fmt: unsupported output format %q", outputFormat)
	}
	if outputFormat == "json" && !write && !check {
		return fmt.Errorf("fmt: json output needs --write or --check")
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	orch := a.orchestrator(nil, nil)
	ctx := cmd.Context()

	results := make([]fmtResult, 0, len(args))
	var hasErrors, hasChanges bool
	for _, arg := range args {
		path := source.Canonical(arg)
		res := fmtResult{Path: source.NormalizePath(path)}
		if write {
			res.Changed, err = orch.FormatFile(ctx, path)
		} else {
			res.text, err = orch.Format(ctx, path)
			if err == nil {
				var current []byte
				current, err = os.ReadFile(path) // #nosec G304 -- path from the command line
				res.Changed = err == nil && string(current) != string(res.text)
			}
		}
		if err != nil {
			res.Error = err.Error()
			hasErrors = true
		}
		if res.Changed {
			hasChanges = true
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			switch {
			case res.Error != "":
				fmt.Fprintf(cmd.ErrOrStderr(), "fmt: %s: %s\n", res.Path, res.Error)
			case check:
				if res.Changed && !a.quiet {
					fmt.Fprintln(out, res.Path)
				}
			case write:
				if res.Changed && !a.quiet {
					fmt.Fprintf(out, "reformatted %s\n", res.Path)
				}
			default:
				if _, err := out.Write(res.text); err != nil {
					return err
				}
			}
		}
	}

	if hasErrors {
		return exitWith(1, "fmt: failed to format some files")
	}
	if check && hasChanges {
		return exitWith(1, "fmt: formatting changes required")
	}
	return nil
}
