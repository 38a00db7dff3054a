package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"nubridge/internal/version"
)

// versionInfo is the build fingerprint printed by `nubridge version`.
type versionInfo struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Go        string `json:"go,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show nubridge build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "show all build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	full, _ := flags.GetBool("full")
	hash, _ := flags.GetBool("hash")
	date, _ := flags.GetBool("date")

	info := collectVersionInfo(hash || full, date || full, full)
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	renderVersionPretty(cmd.OutOrStdout(), info)
	return nil
}

// collectVersionInfo fills the requested fields; unknown build metadata
// reads "unknown".
func collectVersionInfo(hash, date, platform bool) versionInfo {
	info := versionInfo{Tool: "nubridge", Version: strings.TrimSpace(version.Version)}
	if info.Version == "" {
		info.Version = "dev"
	}
	if hash {
		info.GitCommit = valueOrUnknown(version.GitCommit)
	}
	if date {
		info.BuildDate = valueOrUnknown(version.BuildDate)
	}
	if platform {
		info.Go = runtime.Version()
		info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}
	return info
}

func renderVersionPretty(out io.Writer, info versionInfo) {
	fmt.Fprintf(out, "nubridge %s\n", version.Colored())
	for _, kv := range [][2]string{
		{"commit", info.GitCommit},
		{"built", info.BuildDate},
		{"go", info.Go},
		{"platform", info.Platform},
	} {
		if kv[1] != "" {
			fmt.Fprintf(out, "%-9s %s\n", kv[0]+":", kv[1])
		}
	}
}

func valueOrUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
