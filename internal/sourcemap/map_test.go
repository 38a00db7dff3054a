package sourcemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nubridge/internal/errs"
	"nubridge/internal/source"
)

func pos(line, col uint32) source.Pos { return source.Pos{Line: line, Col: col} }

func TestParseAcceptsBothSpellings(t *testing.T) {
	data := []byte(`{
		"version": 3,
		"file": "main.rs",
		"sources": ["main.nu"],
		"mappings": [
			{"nu_line": 1, "nu_column": 2, "rs_line": 10, "rs_column": 4, "name": "main"},
			{"nuLine": 3, "nuColumn": 1, "rsLine": 14, "rsColumn": 8},
			{"nu_line": 5, "nuLine": 99, "rsLine": 20},
			{"nu_line": null, "nuLine": 7, "rs_line": 22, "rs_column": -4},
			"garbage"
		]
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Version)
	assert.Equal(t, "main.rs", m.File)
	assert.Equal(t, []string{"main.nu"}, m.Sources)
	require.Len(t, m.Mappings, 4)

	assert.Equal(t, Mapping{Source: pos(1, 2), Target: pos(10, 4), Name: "main"}, m.Mappings[0])
	assert.Equal(t, Mapping{Source: pos(3, 1), Target: pos(14, 8)}, m.Mappings[1])
	// snake_case wins when both are present; absent columns default to 0
	assert.Equal(t, Mapping{Source: pos(5, 0), Target: pos(20, 0)}, m.Mappings[2])
	// null counts as absent, negative clamps to 0
	assert.Equal(t, Mapping{Source: pos(7, 0), Target: pos(22, 0)}, m.Mappings[3])
}

func TestParseWithoutMappings(t *testing.T) {
	m, err := Parse([]byte(`{"version": 1}`))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Backward(1, 1)
	assert.False(t, ok)
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{``, `{`, `[1,2]`, `"x"`} {
		_, err := Parse([]byte(in))
		require.ErrorIs(t, err, errs.ErrMappingUnavailable, "input %q", in)
	}
}

func threeLineMap() *Map {
	return &Map{Mappings: []Mapping{
		{Source: pos(1, 1), Target: pos(2, 1)},
		{Source: pos(3, 1), Target: pos(5, 1)},
		{Source: pos(6, 1), Target: pos(9, 1)},
	}}
}

func TestBackwardNearestPrecedingLine(t *testing.T) {
	m := threeLineMap()

	got, ok := m.Backward(7, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(5), got.Target.Line)
	assert.Equal(t, uint32(3), got.Source.Line)

	_, ok = m.Backward(1, 1)
	assert.False(t, ok, "query before every mapped line must miss")

	got, ok = m.Backward(100, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(9), got.Target.Line)
}

func TestLookupExactLineNearestColumn(t *testing.T) {
	m := &Map{Mappings: []Mapping{
		{Source: pos(1, 1), Target: pos(4, 1)},
		{Source: pos(2, 1), Target: pos(4, 20)},
		{Source: pos(2, 9), Target: pos(4, 9)},
		{Source: pos(3, 1), Target: pos(3, 1)},
	}}

	got, ok := m.Backward(4, 11)
	require.True(t, ok)
	assert.Equal(t, pos(2, 9), got.Source)

	// equal distance: the earlier mapping wins
	got, ok = m.Backward(4, 5)
	require.True(t, ok)
	assert.Equal(t, pos(1, 1), got.Source)
}

func TestLookupExactLineBeatsPrecedingLine(t *testing.T) {
	// The preceding line is one away but the exact line's nearest column is
	// far; an exact line match still wins.
	m := &Map{Mappings: []Mapping{
		{Source: pos(1, 1), Target: pos(9, 1)},
		{Source: pos(2, 1), Target: pos(10, 80)},
	}}
	got, ok := m.Backward(10, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(2), got.Source.Line)
}

func TestLookupToleratesArbitraryOrder(t *testing.T) {
	m := &Map{Mappings: []Mapping{
		{Source: pos(6, 1), Target: pos(9, 1)},
		{Source: pos(1, 1), Target: pos(2, 1)},
		{Source: pos(3, 1), Target: pos(5, 1)},
	}}
	got, ok := m.Backward(8, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(5), got.Target.Line)

	got, ok = m.Forward(4, 3)
	require.True(t, ok)
	assert.Equal(t, uint32(3), got.Source.Line)
}

func TestExactHitsRoundTrip(t *testing.T) {
	m := threeLineMap()
	for _, mp := range m.Mappings {
		fwd, ok := m.Forward(mp.Source.Line, mp.Source.Col)
		require.True(t, ok)
		assert.Equal(t, mp.Target, fwd.Target)

		back, ok := m.Backward(fwd.Target.Line, fwd.Target.Col)
		require.True(t, ok)
		assert.Equal(t, mp.Source, back.Source)
	}
}

func TestNilMapLookup(t *testing.T) {
	var m *Map
	_, ok := m.Forward(1, 1)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}
