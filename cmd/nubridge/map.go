package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
)

var mapCmd = &cobra.Command{
	Use:   "map [flags] forward|backward <file> <line[:col]>",
	Short: "Map a position between a .nu source and its generated .rs file",
	Long: `Map a 1-based position through the position map written next to the
generated Rust file. forward takes a .nu file and answers with the .rs
position; backward takes a .rs file and answers with the .nu position.`,
	Args: cobra.ExactArgs(3),
	RunE: runMap,
}

func init() {
	mapCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type mapJSON struct {
	Found  bool   `json:"found"`
	File   string `json:"file,omitempty"`
	Line   uint32 `json:"line,omitempty"`
	Column uint32 `json:"column,omitempty"`
	Name   string `json:"name,omitempty"`
}

func runMap(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	pos, err := parsePosition(args[2])
	if err != nil {
		return err
	}
	path := source.Canonical(args[1])

	var (
		mapPath string
		other   string
		forward bool
	)
	switch strings.ToLower(args[0]) {
	case "forward", "fwd":
		if !source.IsSource(path) {
			return fmt.Errorf("forward mapping takes a %s file: %s", source.SourceExt, args[1])
		}
		forward = true
		mapPath, other = source.MapPathForSource(path), source.TargetPath(path)
	case "backward", "back":
		if !source.IsTarget(path) {
			return fmt.Errorf("backward mapping takes a %s file: %s", source.TargetExt, args[1])
		}
		mapPath, other = source.MapPath(path), source.SourcePathFor(path)
	default:
		return fmt.Errorf("unknown direction %q (must be forward or backward)", args[0])
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	// Load first so a missing map is reported instead of looking like a miss.
	if _, err := a.maps.Load(mapPath); err != nil {
		return err
	}
	var (
		hit sourcemap.Mapping
		ok  bool
	)
	if forward {
		hit, ok = a.maps.MapForward(mapPath, pos.Line, pos.Col)
	} else {
		hit, ok = a.maps.MapBackward(mapPath, pos.Line, pos.Col)
	}

	landed := hit.Source
	if forward {
		landed = hit.Target
	}
	landed = clampPos(landed)
	out := cmd.OutOrStdout()
	if format == "json" {
		payload := mapJSON{Found: ok}
		if ok {
			payload.File, payload.Line, payload.Column, payload.Name = other, landed.Line, landed.Col, hit.Name
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	if !ok {
		return exitWith(1, "no mapping for %s:%s", source.NormalizePath(path), pos)
	}
	if hit.Name != "" {
		fmt.Fprintf(out, "%s:%s (%s)\n", source.NormalizePath(other), landed, hit.Name)
		return nil
	}
	fmt.Fprintf(out, "%s:%s\n", source.NormalizePath(other), landed)
	return nil
}

// parsePosition reads "line" or "line:col", both 1-based. A missing column
// means column 1.
func parsePosition(s string) (source.Pos, error) {
	lineText, colText, hasCol := strings.Cut(strings.TrimSpace(s), ":")
	line, err := strconv.ParseUint(lineText, 10, 32)
	if err != nil || line == 0 {
		return source.Pos{}, fmt.Errorf("invalid position %q: line must be a positive number", s)
	}
	col := uint64(1)
	if hasCol {
		col, err = strconv.ParseUint(colText, 10, 32)
		if err != nil || col == 0 {
			return source.Pos{}, fmt.Errorf("invalid position %q: column must be a positive number", s)
		}
	}
	return source.Pos{Line: uint32(line), Col: uint32(col)}, nil
}

// clampPos turns absent fields into 1.
func clampPos(p source.Pos) source.Pos {
	if p.Line == 0 {
		p.Line = 1
	}
	if p.Col == 0 {
		p.Col = 1
	}
	return p
}
