package lsp

import (
	"fortio.org/safecast"

	"nubridge/internal/source"
)

const maxUint32 = ^uint32(0)

func safeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return maxUint32
	}
	return v
}

func safeInt(n uint32) int {
	v, err := safecast.Conv[int](n)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return v
}

// toPos converts an editor position into a stored 1-based one.
func toPos(p position) source.Pos {
	return source.FromZero(safeUint32(p.Line), safeUint32(p.Character))
}

// fromPos converts a stored position to the editor's 0-based form.
func fromPos(p source.Pos) position {
	line, col := p.ToZero()
	return position{Line: safeInt(line), Character: safeInt(col)}
}

func rangeForSpan(span source.Span) lspRange {
	start := fromPos(span.Start())
	end := fromPos(span.End())
	if span.LineEnd == 0 && span.ColEnd == 0 {
		end = start
	}
	if end.Line < start.Line || (end.Line == start.Line && end.Character < start.Character) {
		end = start
	}
	return lspRange{Start: start, End: end}
}

func pointRange(p source.Pos) lspRange {
	at := fromPos(p)
	return lspRange{Start: at, End: at}
}
