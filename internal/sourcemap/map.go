// Package sourcemap loads and queries the position maps that nu2rust emits
// next to every generated .rs file.
//
// A map file is JSON:
//
//	{"version": 1, "file": "main.rs", "sources": ["main.nu"],
//	 "mappings": [{"nu_line": 3, "nu_column": 5, "rs_line": 12, "rs_column": 9, "name": "x"}]}
//
// Mapping fields may be spelled snake_case or camelCase. Lines and columns
// are 1-based here; editor-facing code converts through source.Pos.
package sourcemap

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/tidwall/gjson"

	"nubridge/internal/errs"
	"nubridge/internal/source"
)

// Mapping is one source/target correspondence.
type Mapping struct {
	Source source.Pos `msgpack:"s"`
	Target source.Pos `msgpack:"t"`
	Name   string     `msgpack:"n,omitempty"`
}

// Map is the parsed content of one map file. It is immutable after Parse.
type Map struct {
	Version  int       `msgpack:"v"`
	File     string    `msgpack:"f"`
	Sources  []string  `msgpack:"src"`
	Mappings []Mapping `msgpack:"m"`
}

// ErrInvalid marks map content that is not a JSON object.
var ErrInvalid = fmt.Errorf("invalid position map: %w", errs.ErrMappingUnavailable)

// field spellings, first non-absent wins
var (
	nuLineKeys   = []string{"nu_line", "nuLine"}
	nuColumnKeys = []string{"nu_column", "nuColumn"}
	rsLineKeys   = []string{"rs_line", "rsLine"}
	rsColumnKeys = []string{"rs_column", "rsColumn"}
)

// Parse decodes a map file. Unknown fields are ignored; absent numeric
// fields default to 0 and a missing "mappings" array yields an empty map.
func Parse(data []byte) (*Map, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalid
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrInvalid
	}

	m := &Map{
		Version: int(root.Get("version").Int()),
		File:    root.Get("file").String(),
	}
	for _, s := range root.Get("sources").Array() {
		m.Sources = append(m.Sources, s.String())
	}

	entries := root.Get("mappings").Array()
	m.Mappings = make([]Mapping, 0, len(entries))
	for _, e := range entries {
		if !e.IsObject() {
			continue
		}
		m.Mappings = append(m.Mappings, Mapping{
			Source: source.Pos{Line: firstUint(e, nuLineKeys), Col: firstUint(e, nuColumnKeys)},
			Target: source.Pos{Line: firstUint(e, rsLineKeys), Col: firstUint(e, rsColumnKeys)},
			Name:   e.Get("name").String(),
		})
	}
	return m, nil
}

// firstUint returns the first present, non-null key as uint32. Negative or
// out of range numbers count as 0.
func firstUint(obj gjson.Result, keys []string) uint32 {
	for _, k := range keys {
		v := obj.Get(k)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		n, err := safecast.Conv[uint32](v.Int())
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Len returns the number of mappings.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Mappings)
}
