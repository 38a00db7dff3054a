package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var autoCompileLine = regexp.MustCompile(`(?m)^[ \t]*auto_compile[ \t]*=.*$`)

// SetAutoCompile persists auto_compile for the project containing root and
// returns the file written. Without a config file a new nubridge.toml is
// created in root.
func SetAutoCompile(root string, on bool) (string, error) {
	path, ok, err := FindConfig(root)
	if err != nil {
		return "", err
	}
	if !ok {
		abs, err := filepath.Abs(root)
		if err != nil {
			return "", err
		}
		path = filepath.Join(abs, TOMLName)
		return path, os.WriteFile(path, []byte("auto_compile = "+strconv.FormatBool(on)+"\n"), 0o644)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var out []byte
	if filepath.Ext(path) == ".toml" {
		out, err = setTOMLAutoCompile(data, on)
	} else {
		out, err = setYAMLAutoCompile(data, on)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return path, os.WriteFile(path, out, 0o644)
}

// setTOMLAutoCompile edits the line in place so comments and key order
// survive.
func setTOMLAutoCompile(data []byte, on bool) ([]byte, error) {
	line := []byte("auto_compile = " + strconv.FormatBool(on))
	var out []byte
	if autoCompileLine.Match(data) {
		replaced := false
		out = autoCompileLine.ReplaceAllFunc(data, func(m []byte) []byte {
			if replaced {
				return m
			}
			replaced = true
			return line
		})
	} else {
		out = append(append(line, '\n'), data...)
	}
	var check Config
	if _, err := toml.Decode(string(out), &check); err != nil {
		return nil, fmt.Errorf("rewrite produced invalid TOML: %w", err)
	}
	if check.AutoCompile != on {
		return nil, fmt.Errorf("auto_compile is not a top-level key")
	}
	return out, nil
}

func setYAMLAutoCompile(data []byte, on bool) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping")
	}
	m := doc.Content[0]
	value := strconv.FormatBool(on)
	found := false
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == "auto_compile" {
			m.Content[i+1].Kind = yaml.ScalarNode
			m.Content[i+1].Tag = "!!bool"
			m.Content[i+1].Value = value
			found = true
			break
		}
	}
	if !found {
		m.Content = append([]*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "auto_compile"},
			{Kind: yaml.ScalarNode, Tag: "!!bool", Value: value},
		}, m.Content...)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
