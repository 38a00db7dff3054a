package lsp

import (
	"context"
	"errors"
	"sort"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/diag"
	"nubridge/internal/errs"
	"nubridge/internal/source"
	"nubridge/internal/trace"
)

// publishResult reports a finished compile to the editor: diagnostics per
// file and a message for hard failures. The orchestrator announces
// compile.completed itself. In-progress rejections are dropped; the running
// compile reports itself.
func (s *Server) publishResult(ctx context.Context, res buildpipeline.Result) {
	if errors.Is(res.Err, errs.ErrAlreadyInProgress) {
		return
	}
	src := res.SourcePath
	if src == "" {
		return
	}
	srcURI := pathToURI(source.Canonical(src))

	byURI := map[string][]lspDiagnostic{srcURI: {}}
	if res.Diagnostics != nil {
		for _, d := range res.Diagnostics.Items() {
			path := d.Primary.File
			if path == "" {
				path = src
			}
			uri := pathToURI(source.Canonical(path))
			byURI[uri] = append(byURI[uri], toLSPDiagnostic(d, src))
		}
	}
	s.publishDiagnostics(byURI)

	if res.Err != nil && !errors.Is(res.Err, errs.ErrCheckFailed) {
		s.showMessage(messageError, "%s", failureMessage(res.Err))
	}
	for _, w := range res.Warnings {
		s.logMessage("%s: %s", source.NormalizePath(src), w)
	}
}

func failureMessage(err error) string {
	var missing *errs.ToolMissingError
	switch {
	case errors.As(err, &missing):
		return missing.Tool + " not found. Install it or set its path in nubridge.toml."
	case errors.Is(err, errs.ErrConversionFailed):
		return "Nu → Rust conversion failed: " + err.Error()
	default:
		return "Nu compilation failed: " + err.Error()
	}
}

func toLSPDiagnostic(d diag.Diagnostic, fallback string) lspDiagnostic {
	src := d.Source
	if src == "" {
		src = diagnosticSource
	}
	out := lspDiagnostic{
		Range:    rangeForSpan(d.Primary),
		Severity: d.Severity.LSP(),
		Code:     d.Code,
		Source:   src,
		Message:  d.Message,
	}
	for _, rel := range d.Related {
		file := rel.Span.File
		if file == "" {
			file = fallback
		}
		out.RelatedInformation = append(out.RelatedInformation, relatedInformation{
			Location: location{URI: pathToURI(source.Canonical(file)), Range: rangeForSpan(rel.Span)},
			Message:  rel.Msg,
		})
	}
	return out
}

func (s *Server) publishDiagnostics(byURI map[string][]lspDiagnostic) {
	uris := make([]string, 0, len(byURI))
	for uri := range byURI {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	for _, uri := range uris {
		diags := byURI[uri]
		if err := s.sendPublish(uri, diags); err != nil {
			s.logf("failed to publish diagnostics: %v", err)
			continue
		}
		s.mu.Lock()
		if len(diags) == 0 {
			delete(s.published, uri)
		} else {
			s.published[uri] = struct{}{}
		}
		s.mu.Unlock()
		trace.Point(s.tracer, trace.ScopeItem, "lsp", "publish", uri)
	}
}

func (s *Server) sendPublish(uri string, diags []lspDiagnostic) error {
	if diags == nil {
		diags = []lspDiagnostic{}
	}
	return s.notify("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	uris := make([]string, 0, len(s.published))
	for uri := range s.published {
		uris = append(uris, uri)
	}
	clear(s.published)
	s.mu.Unlock()
	sort.Strings(uris)
	for _, uri := range uris {
		if err := s.sendPublish(uri, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
}
