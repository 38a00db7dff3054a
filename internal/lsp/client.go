package lsp

import (
	"context"

	"nubridge/internal/breakpoints"
	"nubridge/internal/source"
)

// client turns component callbacks into notifications for the editor
// extension. It serves as the breakpoint debugger, the notifier and the
// debug sync view.
type client struct {
	s *Server
}

func toWire(bp breakpoints.Breakpoint) wireBreakpoint {
	out := wireBreakpoint{
		ID:           bp.ID,
		URI:          pathToURI(bp.Path),
		Enabled:      bp.Enabled,
		Condition:    bp.Condition,
		HitCondition: bp.HitCondition,
		LogMessage:   bp.LogMessage,
	}
	if bp.Line > 0 {
		out.Line = safeInt(bp.Line - 1)
	}
	if bp.Col > 0 {
		ch := safeInt(bp.Col - 1)
		out.Character = &ch
	}
	return out
}

func fromWire(w wireBreakpoint) breakpoints.Breakpoint {
	path := uriToPath(w.URI)
	if path != "" {
		path = source.Canonical(path)
	}
	bp := breakpoints.Breakpoint{
		ID:           w.ID,
		Path:         path,
		Line:         safeUint32(w.Line) + 1,
		Enabled:      w.Enabled,
		Condition:    w.Condition,
		HitCondition: w.HitCondition,
		LogMessage:   w.LogMessage,
	}
	if w.Character != nil {
		bp.Col = safeUint32(*w.Character) + 1
	}
	return bp
}

func fromWireAll(ws []wireBreakpoint) []breakpoints.Breakpoint {
	if len(ws) == 0 {
		return nil
	}
	out := make([]breakpoints.Breakpoint, 0, len(ws))
	for _, w := range ws {
		out = append(out, fromWire(w))
	}
	return out
}

func (c *client) send(method string, bps []breakpoints.Breakpoint) error {
	wire := make([]wireBreakpoint, 0, len(bps))
	for _, bp := range bps {
		wire = append(wire, toWire(bp))
	}
	return c.s.notify(method, targetBreakpointsParams{Breakpoints: wire})
}

func (c *client) AddBreakpoints(_ context.Context, bps []breakpoints.Breakpoint) error {
	return c.send("nubridge/setTargetBreakpoints", bps)
}

func (c *client) RemoveBreakpoints(_ context.Context, bps []breakpoints.Breakpoint) error {
	return c.send("nubridge/removeTargetBreakpoints", bps)
}

func (c *client) Notify(sev breakpoints.Severity, msg string) {
	kind := messageInfo
	switch sev {
	case breakpoints.SeverityWarning:
		kind = messageWarning
	case breakpoints.SeverityError:
		kind = messageError
	}
	c.s.showMessage(kind, "%s", msg)
}

func (c *client) reveal(method string, loc source.Location) error {
	return c.s.notify(method, revealParams{
		TextDocument: textDocumentIdentifier{URI: pathToURI(loc.Path)},
		Range:        pointRange(loc.Pos),
	})
}

func (c *client) Reveal(_ context.Context, loc source.Location) error {
	return c.reveal("nubridge/reveal", loc)
}

func (c *client) Highlight(_ context.Context, loc source.Location) error {
	return c.reveal("nubridge/highlight", loc)
}

func (c *client) ClearHighlight(_ context.Context, path string) error {
	return c.s.notify("nubridge/clearHighlight", documentParams{
		TextDocument: textDocumentIdentifier{URI: pathToURI(path)},
	})
}
