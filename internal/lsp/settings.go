package lsp

import "encoding/json"

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.applySettings(params.Settings)
	return nil
}

// applySettings accepts {"nubridge": {...}} from didChangeConfiguration and
// initializationOptions alike.
func (s *Server) applySettings(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var settings lspSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return
	}
	cfg := settings.Nubridge
	if cfg.AutoCompile != nil {
		s.auto.SetEnabled(*cfg.AutoCompile)
	}
	if cfg.AutoCheck != nil && s.pipeline != nil {
		s.pipeline.SetCheck(*cfg.AutoCheck)
	}
	if cfg.Trace != nil {
		s.mu.Lock()
		s.traceLSP = *cfg.Trace
		s.mu.Unlock()
	}
}
