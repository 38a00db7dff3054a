package sourcemap

import "nubridge/internal/source"

// Direction selects which side of a mapping a query is expressed in.
type Direction uint8

const (
	// Forward queries source (.nu) positions and yields target positions.
	Forward Direction = iota
	// Backward queries target (.rs) positions and yields source positions.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func (d Direction) key(m *Mapping) source.Pos {
	if d == Backward {
		return m.Target
	}
	return m.Source
}

// Lookup finds the mapping for a 1-based (line, col) query on the side
// selected by dir. A mapping on the same line wins, picking the smallest
// column distance; otherwise the nearest preceding line wins. Ties keep the
// earliest mapping in file order. A query before every mapped line, or an
// empty map, finds nothing.
func (m *Map) Lookup(dir Direction, line, col uint32) (Mapping, bool) {
	if m == nil {
		return Mapping{}, false
	}

	exact, exactDist := -1, uint32(0)
	prev, prevLine := -1, uint32(0)

	for i := range m.Mappings {
		p := dir.key(&m.Mappings[i])
		switch {
		case p.Line == line:
			d := absDiff(p.Col, col)
			if exact < 0 || d < exactDist {
				exact, exactDist = i, d
			}
		case p.Line < line && exact < 0:
			if prev < 0 || p.Line > prevLine {
				prev, prevLine = i, p.Line
			}
		}
	}

	switch {
	case exact >= 0:
		return m.Mappings[exact], true
	case prev >= 0:
		return m.Mappings[prev], true
	default:
		return Mapping{}, false
	}
}

// Forward resolves a source position to its target mapping.
func (m *Map) Forward(line, col uint32) (Mapping, bool) {
	return m.Lookup(Forward, line, col)
}

// Backward resolves a target position to its source mapping.
func (m *Map) Backward(line, col uint32) (Mapping, bool) {
	return m.Lookup(Backward, line, col)
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
