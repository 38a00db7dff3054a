package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nubridge/internal/autocompile"
	"nubridge/internal/breakpoints"
	"nubridge/internal/buildpipeline"
	"nubridge/internal/debugsync"
	"nubridge/internal/event"
	"nubridge/internal/sourcemap"
	"nubridge/internal/trace"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// diagnosticSource tags published diagnostics.
const diagnosticSource = "nu-lang"

// Pipeline is the compile orchestrator as the server uses it.
type Pipeline interface {
	Compile(ctx context.Context, sourcePath string) buildpipeline.Result
	InFlight(sourcePath string) bool
	FormatText(ctx context.Context, path string, text []byte) ([]byte, error)
	Build(ctx context.Context, sourcePath string, opts buildpipeline.BuildOptions) (buildpipeline.BuildResult, error)
	SetCheck(on bool)
	CheckEnabled() bool
}

// Maps answers position queries in both directions.
type Maps interface {
	MapForward(mapPath string, line, col uint32) (sourcemap.Mapping, bool)
	MapBackward(mapPath string, line, col uint32) (sourcemap.Mapping, bool)
}

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	Pipeline Pipeline
	Maps     Maps
	// Bus is shared with other components; a private bus is created when nil.
	Bus         *event.Bus
	AutoCompile bool
	// Highlight is how long an execution highlight stays up.
	Highlight time.Duration
	// SaveAutoCompile persists the auto-compile toggle for a project root
	// and returns the file written. Optional.
	SaveAutoCompile func(root string, on bool) (string, error)
	// Extensions lists installed editor extensions for debugger detection
	// when the client does not send them. Optional.
	Extensions func() []string
	Version    string
	Tracer     trace.Tracer
	// Log receives server log lines; stderr when nil.
	Log io.Writer
}

// Server handles stdio JSON-RPC between an editor and the nubridge
// components. Handlers never let a component failure escape: failures become
// response fields or window/showMessage notifications.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	log    io.Writer
	sendMu sync.Mutex

	mu                sync.Mutex
	published         map[string]struct{}
	workspaceRoot     string
	shutdownRequested bool
	traceLSP          bool
	session           *debugsync.Synchronizer

	baseCtx    context.Context
	pipeline   Pipeline
	maps       Maps
	bus        *event.Bus
	highlight  time.Duration
	saveToggle func(string, bool) (string, error)
	extensions func() []string
	version    string
	tracer     trace.Tracer

	docs   *docStore
	client *client
	auto   *autocompile.Controller
	bps    *breakpoints.Translator
	subs   *event.Group
	wg     sync.WaitGroup
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	logw := opts.Log
	if logw == nil {
		logw = os.Stderr
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}
	highlight := opts.Highlight
	if highlight <= 0 {
		highlight = debugsync.HighlightDuration
	}
	s := &Server{
		in:         bufio.NewReader(in),
		out:        bufio.NewWriter(out),
		log:        logw,
		docs:       newDocStore(),
		published:  make(map[string]struct{}),
		baseCtx:    context.Background(),
		pipeline:   opts.Pipeline,
		maps:       opts.Maps,
		bus:        bus,
		highlight:  highlight,
		saveToggle: opts.SaveAutoCompile,
		extensions: opts.Extensions,
		version:    opts.Version,
		tracer:     tr,
	}
	s.client = &client{s: s}
	s.auto = autocompile.New(opts.Pipeline,
		autocompile.WithEnabled(opts.AutoCompile),
		autocompile.WithTracer(tr),
		autocompile.WithResultHandler(s.publishResult),
	)
	s.bps = breakpoints.New(opts.Maps, s.client, s.client, tr)
	return s
}

// attach wires the mirrors to the bus once.
func (s *Server) attach() error {
	if s.subs != nil {
		return nil
	}
	if err := s.auto.Attach(s.bus); err != nil {
		return err
	}
	g, err := s.bps.Attach(s.bus)
	if err != nil {
		s.auto.Close()
		return err
	}
	s.subs = g
	return nil
}

// Run serves LSP requests until exit or end of input.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = trace.WithTracer(ctx, s.tracer)
	if err := s.attach(); err != nil {
		return err
	}
	defer s.close()
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) close() {
	s.wg.Wait()
	s.endSession()
	s.auto.Close()
	if s.subs != nil {
		s.subs.Close()
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	if s.currentTrace() {
		s.logf("<- %s", msg.Method)
	}
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized", "$/cancelRequest", "$/setTrace":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if s.isShutdown() {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/formatting":
		return s.async(msg, s.handleFormatting)
	case "nubridge/compile":
		return s.async(msg, s.handleCompile)
	case "nubridge/format":
		return s.async(msg, s.handleFormat)
	case "nubridge/build":
		return s.async(msg, s.handleBuild)
	case "nubridge/launchConfig":
		return s.async(msg, s.handleLaunchConfig)
	case "nubridge/mapForward":
		return s.handleMap(msg, true)
	case "nubridge/mapBackward":
		return s.handleMap(msg, false)
	case "nubridge/toggleAutoCompile":
		return s.handleToggleAutoCompile(msg)
	case "nubridge/breakpoints":
		return s.handleBreakpoints(msg)
	case "nubridge/sessionStarted":
		return s.handleSessionStarted(msg)
	case "nubridge/sessionEnded":
		return s.handleSessionEnded(msg)
	case "nubridge/executionPosition":
		return s.handleTargetPosition(msg, event.TopicPositionChanged)
	case "nubridge/cursorMoved":
		return s.handleTargetPosition(msg, event.TopicCursorMoved)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

// requestFunc handles a request and returns its result. A non-nil error
// becomes a JSON-RPC error response.
type requestFunc func(ctx context.Context, msg *rpcMessage) (any, *rpcError)

// async runs a long request off the read loop so notifications keep
// flowing while a compile or build runs.
func (s *Server) async(msg *rpcMessage, fn requestFunc) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := s.baseCtx
		var (
			result any
			rerr   *rpcError
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logf("%s: panic: %v", msg.Method, r)
					if ring := trace.RingOf(s.tracer); ring != nil {
						s.logf("recent trace events:")
						_ = ring.Dump(s.log, trace.FormatText)
					}
					rerr = &rpcError{Code: codeInternalError, Message: fmt.Sprintf("internal error: %v", r)}
				}
			}()
			result, rerr = fn(ctx, msg)
		}()
		if len(msg.ID) == 0 {
			return
		}
		var err error
		if rerr != nil {
			err = s.sendError(msg.ID, rerr.Code, rerr.Message)
		} else {
			err = s.sendResponse(msg.ID, result)
		}
		if err != nil {
			s.logf("%s: failed to respond: %v", msg.Method, err)
		}
	}()
	return nil
}

// wait blocks until in-flight asynchronous requests and compiles finish.
func (s *Server) wait() {
	s.wg.Wait()
	s.auto.Wait()
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s.mu.Lock()
	s.workspaceRoot = root
	s.mu.Unlock()
	if len(params.InitializationOptions) > 0 {
		s.applySettings(params.InitializationOptions)
	}

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save: saveOptions{
					IncludeText: false,
				},
			},
			DocumentFormattingProvider: true,
		},
		ServerInfo: serverInfo{Name: "nubridge", Version: s.version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.wait()
	s.endSession()
	s.clearPublishedDiagnostics()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) notify(method string, params any) error {
	return s.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(s.log, "nubridge-lsp: "+format+"\n", args...)
}

// showMessage sends window/showMessage and mirrors it to the log.
func (s *Server) showMessage(kind int, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if err := s.notify("window/showMessage", showMessageParams{Type: kind, Message: text}); err != nil {
		s.logf("failed to show message: %v", err)
	}
	if kind == messageError {
		s.logf("%s", text)
	}
}

func (s *Server) logMessage(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if err := s.notify("window/logMessage", showMessageParams{Type: messageLog, Message: text}); err != nil {
		s.logf("failed to log message: %v", err)
	}
}
