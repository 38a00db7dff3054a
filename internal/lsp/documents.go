package lsp

import (
	"encoding/json"
	"sync"

	"nubridge/internal/event"
	"nubridge/internal/source"
)

type document struct {
	text    string
	version int
}

// docStore holds the text of documents the editor has open, keyed by
// canonical URI. Format requests compare against it instead of the disk.
type docStore struct {
	mu   sync.Mutex
	docs map[string]document
}

func newDocStore() *docStore {
	return &docStore{docs: make(map[string]document)}
}

func (d *docStore) set(uri, text string, version int) {
	d.mu.Lock()
	d.docs[uri] = document{text: text, version: version}
	d.mu.Unlock()
}

func (d *docStore) edit(uri string, version int, changes []textDocumentContentChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc := d.docs[uri]
	d.docs[uri] = document{text: applyChanges(doc.text, changes), version: version}
}

// saved replaces the text when the editor sends it with didSave.
func (d *docStore) saved(uri string, text *string) {
	if text == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	doc := d.docs[uri]
	doc.text = *text
	d.docs[uri] = doc
}

func (d *docStore) drop(uri string) {
	d.mu.Lock()
	delete(d.docs, uri)
	d.mu.Unlock()
}

func (d *docStore) text(uri string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[uri]
	return doc.text, ok
}

// decodeURI unmarshals params and returns the canonical document URI, or ""
// when the document is not a file.
func decodeURI[T any](msg *rpcMessage, uriOf func(*T) string) (*T, string, error) {
	params := new(T)
	if err := json.Unmarshal(msg.Params, params); err != nil {
		return nil, "", err
	}
	return params, canonicalURI(uriOf(params)), nil
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	params, uri, err := decodeURI(msg, func(p *didOpenTextDocumentParams) string { return p.TextDocument.URI })
	if err != nil || uri == "" {
		return err
	}
	s.docs.set(uri, params.TextDocument.Text, params.TextDocument.Version)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	params, uri, err := decodeURI(msg, func(p *didChangeTextDocumentParams) string { return p.TextDocument.URI })
	if err != nil || uri == "" {
		return err
	}
	s.docs.edit(uri, params.TextDocument.Version, params.ContentChanges)
	return nil
}

// handleDidSave publishes file.saved; the auto-compile controller picks it
// up when enabled.
func (s *Server) handleDidSave(msg *rpcMessage) error {
	params, uri, err := decodeURI(msg, func(p *didSaveTextDocumentParams) string { return p.TextDocument.URI })
	if err != nil || uri == "" {
		return err
	}
	s.docs.saved(uri, params.Text)
	path := uriToPath(uri)
	if !source.IsSource(path) {
		return nil
	}
	if err := s.bus.Publish(s.baseCtx, event.TopicFileSaved, event.File{Path: path}); err != nil {
		s.logf("file.saved handlers failed: %v", err)
	}
	return nil
}

// handleDidClose forgets the document and clears diagnostics published for it.
func (s *Server) handleDidClose(msg *rpcMessage) error {
	_, uri, err := decodeURI(msg, func(p *didCloseTextDocumentParams) string { return p.TextDocument.URI })
	if err != nil || uri == "" {
		return err
	}
	s.docs.drop(uri)
	s.mu.Lock()
	_, had := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()
	if !had {
		return nil
	}
	if err := s.sendPublish(uri, nil); err != nil {
		s.logf("failed to clear diagnostics: %v", err)
	}
	return nil
}
