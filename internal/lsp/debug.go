package lsp

import (
	"encoding/json"

	"nubridge/internal/breakpoints"
	"nubridge/internal/debugsync"
	"nubridge/internal/event"
	"nubridge/internal/source"
)

// handleBreakpoints forwards the editor's breakpoint delta to the bus,
// where the translator mirrors it onto the generated files.
func (s *Server) handleBreakpoints(msg *rpcMessage) error {
	var params breakpointsChangedParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("invalid breakpoints params: %v", err)
		return nil
	}
	change := breakpoints.Changed{
		Added:   fromWireAll(params.Added),
		Removed: fromWireAll(params.Removed),
		Changed: fromWireAll(params.Changed),
	}
	if err := s.bus.Publish(s.baseCtx, event.TopicBreakpointsChanged, change); err != nil {
		s.logf("breakpoints.changed handlers failed: %v", err)
	}
	return nil
}

// handleSessionStarted starts a fresh position synchronizer for the new
// debug session and replays the full breakpoint set.
func (s *Server) handleSessionStarted(msg *rpcMessage) error {
	var params sessionStartedParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.logf("invalid sessionStarted params: %v", err)
			return nil
		}
	}
	s.endSession()

	sess := debugsync.New(s.maps, s.client,
		debugsync.WithHighlightDuration(s.highlight),
		debugsync.WithTracer(s.tracer),
	)
	if err := sess.Attach(s.bus); err != nil {
		s.logf("failed to attach debug sync: %v", err)
		return nil
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	snap := breakpoints.Snapshot{SessionID: params.SessionID, Breakpoints: fromWireAll(params.Breakpoints)}
	if err := s.bus.Publish(s.baseCtx, event.TopicSessionStarted, snap); err != nil {
		s.logf("debug.session.started handlers failed: %v", err)
	}
	return nil
}

func (s *Server) handleSessionEnded(msg *rpcMessage) error {
	var params sessionEndedParams
	if len(msg.Params) > 0 {
		_ = json.Unmarshal(msg.Params, &params)
	}
	if err := s.bus.Publish(s.baseCtx, event.TopicSessionEnded, event.Session{ID: params.SessionID}); err != nil {
		s.logf("debug.session.ended handlers failed: %v", err)
	}
	s.endSession()
	return nil
}

// handleTargetPosition publishes a position in a generated file, either the
// debugger's current line or the editor cursor.
func (s *Server) handleTargetPosition(msg *rpcMessage, topic event.Topic) error {
	var params targetPositionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	path := documentPath(params.TextDocument)
	if !source.IsTarget(path) {
		return nil
	}
	pos := event.Position{Path: path, Line: safeUint32(params.Line)}
	if err := s.bus.Publish(s.baseCtx, topic, pos); err != nil {
		s.logf("%s handlers failed: %v", topic, err)
	}
	return nil
}

func (s *Server) endSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess != nil {
		sess.End(s.baseCtx)
	}
}
