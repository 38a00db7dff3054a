package lsp

import (
	"context"
	"encoding/json"
	"os"
	"runtime"

	"nubridge/internal/buildpipeline"
	"nubridge/internal/errs"
	"nubridge/internal/launch"
	"nubridge/internal/source"
	"nubridge/internal/sourcemap"
)

func invalidParams(msg string) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: msg}
}

func requestFailed(err error) *rpcError {
	return &rpcError{Code: codeRequestFailed, Message: err.Error(), Data: errs.Kind(err)}
}

func decodeDocument(msg *rpcMessage) (string, *rpcError) {
	var params documentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return "", invalidParams("invalid params")
	}
	path := documentPath(params.TextDocument)
	if path == "" {
		return "", invalidParams("textDocument must be a file URI")
	}
	return path, nil
}

func (s *Server) handleCompile(ctx context.Context, msg *rpcMessage) (any, *rpcError) {
	path, rerr := decodeDocument(msg)
	if rerr != nil {
		return nil, rerr
	}
	if !source.IsSource(path) {
		s.showMessage(messageWarning, "Please open a .nu file first")
		return nil, invalidParams("not a .nu file: " + path)
	}
	res := s.pipeline.Compile(ctx, path)
	s.publishResult(ctx, res)

	out := compileResult{
		Success:     res.Success,
		Target:      res.TargetPath,
		Map:         res.MapPath,
		Warnings:    res.Warnings,
		ElapsedMsec: res.Timings.Sum(buildpipeline.Stages...).Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.Kind = errs.Kind(res.Err)
	}
	if res.Diagnostics != nil {
		out.Errors, out.WarningsN = res.Diagnostics.Counts()
	}
	return out, nil
}

// currentText is what the editor holds for path, or the file on disk when
// the document is not open.
func (s *Server) currentText(path string) (string, error) {
	if text, ok := s.documentText(pathToURI(path)); ok {
		return text, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- editor document
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatted runs the formatter over the text the editor holds for path,
// unsaved edits included, and reports whether the result differs from it.
func (s *Server) formatted(ctx context.Context, path string) (formatResult, string, error) {
	current, err := s.currentText(path)
	if err != nil {
		return formatResult{}, "", err
	}
	text, err := s.pipeline.FormatText(ctx, path, []byte(current))
	if err != nil {
		return formatResult{}, "", err
	}
	return formatResult{Changed: current != string(text), Text: string(text)}, current, nil
}

func (s *Server) handleFormat(ctx context.Context, msg *rpcMessage) (any, *rpcError) {
	path, rerr := decodeDocument(msg)
	if rerr != nil {
		return nil, rerr
	}
	res, _, err := s.formatted(ctx, path)
	if err != nil {
		s.showMessage(messageError, "Format failed: %v", err)
		return nil, requestFailed(err)
	}
	return res, nil
}

// handleFormatting answers textDocument/formatting with a single edit that
// replaces the whole document.
func (s *Server) handleFormatting(ctx context.Context, msg *rpcMessage) (any, *rpcError) {
	var params documentFormattingParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, invalidParams("invalid params")
	}
	path := documentPath(params.TextDocument)
	if path == "" {
		return []textEdit{}, nil
	}
	res, current, err := s.formatted(ctx, path)
	if err != nil {
		s.showMessage(messageError, "Format failed: %v", err)
		return []textEdit{}, nil
	}
	if !res.Changed {
		return []textEdit{}, nil
	}
	return []textEdit{{
		Range:   lspRange{Start: position{}, End: endOfText(current)},
		NewText: res.Text,
	}}, nil
}

func (s *Server) handleBuild(ctx context.Context, msg *rpcMessage) (any, *rpcError) {
	var params buildParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, invalidParams("invalid params")
	}
	path := documentPath(params.TextDocument)
	if !source.IsSource(path) {
		s.showMessage(messageWarning, "Please open a .nu file first")
		return nil, invalidParams("not a .nu file: " + path)
	}
	res, err := s.pipeline.Build(ctx, path, buildpipeline.BuildOptions{
		Release:   params.Release,
		DebugInfo: params.DebugInfo,
	})
	s.publishResult(ctx, res.Compile)
	out := buildResult{Success: err == nil, Binary: res.Binary, Cargo: res.Cargo}
	if err != nil {
		out.Error = err.Error()
		out.Kind = errs.Kind(err)
		s.showMessage(messageError, "Build failed: %v", err)
		return out, nil
	}
	s.showMessage(messageInfo, "Binary built successfully: %s", res.Binary)
	return out, nil
}

// handleMap answers nubridge/mapForward (.nu → .rs) and nubridge/mapBackward
// (.rs → .nu). A miss is a normal answer, not an error.
func (s *Server) handleMap(msg *rpcMessage, forward bool) error {
	var params mapParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	path := documentPath(params.TextDocument)
	at := toPos(params.Position)

	var (
		hit    sourcemap.Mapping
		ok     bool
		other  string
		landed source.Pos
	)
	switch {
	case forward && source.IsSource(path):
		hit, ok = s.maps.MapForward(source.MapPathForSource(path), at.Line, at.Col)
		other, landed = source.TargetPath(path), hit.Target
	case !forward && source.IsTarget(path):
		hit, ok = s.maps.MapBackward(source.MapPath(path), at.Line, at.Col)
		other, landed = source.SourcePathFor(path), hit.Source
	}
	if !ok {
		return s.sendResponse(msg.ID, mapResult{})
	}
	if landed.Line == 0 {
		landed.Line = 1
	}
	if landed.Col == 0 {
		landed.Col = 1
	}
	return s.sendResponse(msg.ID, mapResult{
		Found:    true,
		Location: &location{URI: pathToURI(other), Range: pointRange(landed)},
		Name:     hit.Name,
	})
}

func (s *Server) handleToggleAutoCompile(msg *rpcMessage) error {
	on := s.auto.Toggle()
	res := toggleResult{Enabled: on}
	if s.saveToggle != nil {
		var path string
		if len(msg.Params) > 0 {
			var params documentParams
			if err := json.Unmarshal(msg.Params, &params); err == nil {
				path = documentPath(params.TextDocument)
			}
		}
		if root := projectRoot(s.currentRoot(), path); root != "" {
			written, err := s.saveToggle(root, on)
			if err != nil {
				s.logf("failed to persist auto_compile: %v", err)
			}
			res.Config = written
		}
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	s.showMessage(messageInfo, "Nu auto-compile %s", state)
	if len(msg.ID) == 0 {
		return nil
	}
	return s.sendResponse(msg.ID, res)
}

func (s *Server) handleLaunchConfig(ctx context.Context, msg *rpcMessage) (any, *rpcError) {
	var params launchConfigParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, invalidParams("invalid params")
	}
	path := documentPath(params.TextDocument)
	if !source.IsSource(path) {
		s.showMessage(messageWarning, "Debug target must be a .nu file")
		return nil, invalidParams("debug target must be a .nu file")
	}

	var dbg launch.Debugger
	if params.Debugger != "" {
		d, err := launch.ParseDebugger(params.Debugger)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		dbg = d
	} else {
		installed := params.Extensions
		if len(installed) == 0 && s.extensions != nil {
			installed = s.extensions()
		}
		d, ok := launch.Detect(installed, runtime.GOOS)
		if !ok {
			s.showMessage(messageError, "No debugger extension found. Please install CodeLLDB or C/C++ extension.")
			return nil, &rpcError{Code: codeRequestFailed, Message: "no debugger extension found"}
		}
		dbg = d
	}

	req := launch.Request{
		Source:   path,
		Args:     params.Args,
		Cwd:      params.Cwd,
		Debugger: dbg,
	}
	if params.Build {
		res, err := s.pipeline.Build(ctx, path, buildpipeline.BuildOptions{DebugInfo: true})
		s.publishResult(ctx, res.Compile)
		if err != nil {
			s.showMessage(messageError, "Build failed: %v", err)
			return nil, requestFailed(err)
		}
		req.Binary = res.Binary
	} else {
		req.Binary = buildpipeline.DebugBinary(path)
		req.PreLaunchTask = launch.DefaultPreLaunchTask
	}
	cfg, err := launch.New(req)
	if err != nil {
		return nil, requestFailed(err)
	}
	return cfg, nil
}
