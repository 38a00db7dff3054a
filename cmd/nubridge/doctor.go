package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"nubridge/internal/toolchain"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report which toolchain binaries and configuration nubridge uses",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type doctorJSON struct {
	Config  string           `json:"config,omitempty"`
	Root    string           `json:"root"`
	Sources []string         `json:"sources,omitempty"`
	Tools   []toolchain.Info `json:"tools"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	infos := a.tools.Versions(cmd.Context())

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doctorJSON{Config: a.cfg.Path, Root: a.cfg.Root, Sources: a.cfg.Sources, Tools: infos})
	}

	cfgPath := a.cfg.Path
	if cfgPath == "" {
		cfgPath = "(none, using defaults)"
	}
	fmt.Fprintf(out, "config: %s\nroot:   %s\n", cfgPath, a.cfg.Root)
	if len(a.cfg.Sources) > 0 {
		fmt.Fprintf(out, "from:   %s\n", strings.Join(a.cfg.Sources, " < "))
	}
	fmt.Fprintln(out)

	colorOn := useColor(cmd)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	headStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	missing := 0
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TOOL", "STATUS", "VERSION", "PATH").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
	for _, info := range infos {
		status, detail := "ok", info.Path
		style := okStyle
		if info.Err != nil {
			missing++
			status, detail, style = "missing", oneLine(info.Err), badStyle
		}
		if colorOn {
			status = style.Render(status)
		}
		t.Row(info.Tool, status, info.Version, detail)
	}
	fmt.Fprintln(out, t.Render())
	if missing > 0 {
		return exitWith(1, "%d tool(s) not found; set their paths in nubridge.toml or NUBRIDGE_<TOOL>_PATH", missing)
	}
	return nil
}
