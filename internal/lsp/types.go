package lsp

import "encoding/json"

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC and LSP error codes.
const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeInternalError  = -32603
	codeRequestFailed  = -32803
)

type initializeParams struct {
	RootURI               string            `json:"rootUri,omitempty"`
	RootPath              string            `json:"rootPath,omitempty"`
	WorkspaceFolders      []workspaceFolder `json:"workspaceFolders,omitempty"`
	InitializationOptions json.RawMessage   `json:"initializationOptions,omitempty"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type location struct {
	URI   string   `json:"uri"`
	Range lspRange `json:"range"`
}

type textDocumentContentChangeEvent struct {
	Range *lspRange `json:"range,omitempty"`
	Text  string    `json:"text"`
}

type didOpenTextDocumentParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didChangeTextDocumentParams struct {
	TextDocument   versionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []textDocumentContentChangeEvent `json:"contentChanges"`
}

type didSaveTextDocumentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

type didCloseTextDocumentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textDocumentSyncOptions struct {
	OpenClose bool        `json:"openClose"`
	Change    int         `json:"change"`
	Save      saveOptions `json:"save,omitempty"`
}

type saveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

type executeCommandOptions struct {
	Commands []string `json:"commands"`
}

type serverCapabilities struct {
	TextDocumentSync           textDocumentSyncOptions `json:"textDocumentSync"`
	DocumentFormattingProvider bool                    `json:"documentFormattingProvider,omitempty"`
	ExecuteCommandProvider     *executeCommandOptions  `json:"executeCommandProvider,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfo         `json:"serverInfo"`
}

type publishDiagnosticsParams struct {
	URI         string          `json:"uri"`
	Diagnostics []lspDiagnostic `json:"diagnostics"`
}

type relatedInformation struct {
	Location location `json:"location"`
	Message  string   `json:"message"`
}

type lspDiagnostic struct {
	Range              lspRange             `json:"range"`
	Severity           int                  `json:"severity,omitempty"`
	Code               string               `json:"code,omitempty"`
	Source             string               `json:"source,omitempty"`
	Message            string               `json:"message"`
	RelatedInformation []relatedInformation `json:"relatedInformation,omitempty"`
}

type documentFormattingParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textEdit struct {
	Range   lspRange `json:"range"`
	NewText string   `json:"newText"`
}

type showMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

// window/showMessage types.
const (
	messageError   = 1
	messageWarning = 2
	messageInfo    = 3
	messageLog     = 4
)

type didChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

type lspSettings struct {
	Nubridge nubridgeSettings `json:"nubridge"`
}

type nubridgeSettings struct {
	AutoCompile *bool `json:"autoCompile,omitempty"`
	AutoCheck   *bool `json:"autoCheck,omitempty"`
	Trace       *bool `json:"trace,omitempty"`
}

// Custom requests and notifications.

type documentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type compileResult struct {
	Success     bool     `json:"success"`
	Target      string   `json:"target,omitempty"`
	Map         string   `json:"map,omitempty"`
	Error       string   `json:"error,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Errors      int      `json:"errors"`
	WarningsN   int      `json:"warningCount"`
	ElapsedMsec int64    `json:"elapsedMs"`
}

type formatResult struct {
	Changed bool   `json:"changed"`
	Text    string `json:"text"`
}

type buildParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Release      bool                   `json:"release,omitempty"`
	DebugInfo    bool                   `json:"debugInfo,omitempty"`
}

type buildResult struct {
	Success bool   `json:"success"`
	Binary  string `json:"binary,omitempty"`
	Cargo   bool   `json:"cargo"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type mapParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     position               `json:"position"`
}

type mapResult struct {
	Found    bool      `json:"found"`
	Location *location `json:"location,omitempty"`
	Name     string    `json:"name,omitempty"`
}

type toggleResult struct {
	Enabled bool   `json:"enabled"`
	Config  string `json:"config,omitempty"`
}

type launchConfigParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Debugger     string                 `json:"debugger,omitempty"`
	Extensions   []string               `json:"extensions,omitempty"`
	Args         []string               `json:"args,omitempty"`
	Cwd          string                 `json:"cwd,omitempty"`
	Build        bool                   `json:"build,omitempty"`
}

// wireBreakpoint is a breakpoint as editors send it: a document URI and a
// 0-based line.
type wireBreakpoint struct {
	ID           int    `json:"id,omitempty"`
	URI          string `json:"uri"`
	Line         int    `json:"line"`
	Character    *int   `json:"character,omitempty"`
	Enabled      bool   `json:"enabled"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

type breakpointsChangedParams struct {
	Added   []wireBreakpoint `json:"added"`
	Removed []wireBreakpoint `json:"removed"`
	Changed []wireBreakpoint `json:"changed"`
}

type sessionStartedParams struct {
	SessionID   string           `json:"sessionId,omitempty"`
	Breakpoints []wireBreakpoint `json:"breakpoints"`
}

type sessionEndedParams struct {
	SessionID string `json:"sessionId,omitempty"`
}

type targetPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Line         int                    `json:"line"`
}

type targetBreakpointsParams struct {
	Breakpoints []wireBreakpoint `json:"breakpoints"`
}

type revealParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Range        lspRange               `json:"range"`
}
