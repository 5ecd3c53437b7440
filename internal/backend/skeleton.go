// Package backend implements the Real-Backend Adapter Skeleton (spec.md
// C9): reusable machinery on top of internal/jsonrpc that manages one child
// language-server process, the initialize/initialized handshake, sync-kind
// negotiation, notification buffering before initialized, and shutdown.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.bug.st/lsp"

	"github.com/wharflab/polyclient/internal/document"
	"github.com/wharflab/polyclient/internal/jsonrpc"
	"github.com/wharflab/polyclient/internal/workspaceedit"
)

// SyncKind mirrors LSP's TextDocumentSyncKind.
type SyncKind int

const (
	SyncNone SyncKind = iota
	SyncFull
	SyncIncremental
)

const (
	defaultRequestTimeout  = 10 * time.Second // spec.md §5: 10s for Go-style backends
	defaultShutdownGrace   = 2 * time.Second
	defaultTerminateGrace  = 250 * time.Millisecond
	defaultStderrTailBytes = 32 * 1024
)

// ServerRequestHandler is the subset of the Adapter Context a Skeleton needs
// to answer server-initiated requests. internal/adaptercontext.Context
// satisfies it; the interface exists so this package never imports that one.
type ServerRequestHandler interface {
	ApplyWorkspaceEdit(edit workspaceedit.Edit) *workspaceedit.Result
	HandleServerRequest(method string, params any) (any, error)
}

// Config configures a Skeleton. Command and WorkspaceFolder are required.
type Config struct {
	Command         []string
	WorkspaceFolder string

	RequestTimeout  time.Duration
	ShutdownGrace   time.Duration
	TerminateGrace  time.Duration
	StderrTailBytes int

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = defaultTerminateGrace
	}
	if c.StderrTailBytes <= 0 {
		c.StderrTailBytes = defaultStderrTailBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type queuedNotification struct {
	method string
	params any
}

// Skeleton owns one child process, one JSON-RPC connection, and the
// negotiated sync state for a single real-backend adapter.
type Skeleton struct {
	cfg Config

	mu          sync.Mutex
	proc        *childProcess
	conn        *jsonrpc.Connection
	started     bool
	initialized bool
	initErr     error

	syncOpenClose bool
	syncKind      SyncKind

	queue   []queuedNotification
	handler ServerRequestHandler

	onNotification func(method string, params json.RawMessage)
	onTransportErr func(error)
	onProcessExit  func()
	shuttingDown   bool
}

// SetProcessExitHandler installs the callback invoked when the child
// process exits on its own, outside of an explicit Shutdown (SPEC_FULL
// §C.1's crash-recovery hook: the caller maps this to failing the adapter
// record the same way an initialization failure would).
func (s *Skeleton) SetProcessExitHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProcessExit = fn
}

func (s *Skeleton) watchProcess(proc *childProcess) {
	<-proc.exited

	s.mu.Lock()
	shuttingDown := s.shuttingDown
	fn := s.onProcessExit
	s.mu.Unlock()

	if !shuttingDown && fn != nil {
		fn()
	}
}

// SetNotificationHandler installs the callback invoked for every
// notification the server sends (e.g. textDocument/publishDiagnostics), in
// arrival order. A concrete adapter built on this skeleton wires this to
// its own Adapter Context; the skeleton itself does not interpret them.
func (s *Skeleton) SetNotificationHandler(fn func(method string, params json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNotification = fn
}

// SetTransportErrorHandler installs the callback invoked when the
// connection detects a transport/decode-level failure or closes.
func (s *Skeleton) SetTransportErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransportErr = fn
}

// New returns a Skeleton that has not yet spawned its child process.
func New(cfg Config) *Skeleton {
	cfg.setDefaults()
	return &Skeleton{cfg: cfg, syncOpenClose: true, syncKind: SyncIncremental}
}

// SetRequestHandler attaches the Adapter Context used to answer
// server-initiated requests. Must be called before Initialize.
func (s *Skeleton) SetRequestHandler(h ServerRequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// newSpawnError wraps err with the process's current stderr tail, so every
// failure reported past the point the process exists is self-diagnosing
// without the caller having to remember to attach it.
func (s *Skeleton) newSpawnError(op string, err error) *SpawnError {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	return &SpawnError{Op: op, Err: err, Stderr: proc.stderrSnapshot()}
}

// ensureStarted spawns the child process and builds the connection on the
// first outbound send, per spec.md §4.9.
func (s *Skeleton) ensureStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	proc, err := startChildProcess(s.cfg.Command, s.cfg.WorkspaceFolder, s.cfg.StderrTailBytes, s.cfg.TerminateGrace)
	if err != nil {
		return &SpawnError{Op: "spawn server", Err: err}
	}

	s.proc = proc
	go s.watchProcess(proc)
	s.conn = jsonrpc.NewConnection(proc.stdout, proc.stdin, jsonrpc.Handler{
		OnRequest: s.onServerRequest,
		OnNotification: func(method string, params json.RawMessage) {
			s.mu.Lock()
			fn := s.onNotification
			s.mu.Unlock()
			if fn != nil {
				fn(method, params)
			}
		},
		OnError: func(err error) {
			s.mu.Lock()
			fn := s.onTransportErr
			s.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		},
		OnClose: func(err error) {
			s.mu.Lock()
			fn := s.onTransportErr
			s.mu.Unlock()
			if fn != nil && err != nil {
				fn(err)
			}
		},
	}, s.cfg.Logger)
	s.started = true
	return nil
}

// Initialize sends the LSP initialize/initialized handshake, negotiates the
// text-document-sync shape, and flushes any notification queued before the
// handshake completed.
func (s *Skeleton) Initialize(ctx context.Context) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}

	workspaceURI, err := document.NormalizeURI(s.cfg.WorkspaceFolder)
	if err != nil {
		return s.newSpawnError("initialize", fmt.Errorf("workspace folder: %w", err))
	}

	params := map[string]any{
		"processId":    nil,
		"rootUri":      workspaceURI,
		"capabilities": map[string]any{},
		"workspaceFolders": []map[string]any{
			{"uri": workspaceURI, "name": workspaceURI},
		},
	}

	raw, err := s.sendInitialize(ctx, params)
	if err != nil {
		return s.fail(s.newSpawnError("initialize", err))
	}

	s.negotiateSync(raw)

	if err := s.conn.SendNotification("initialized", map[string]any{}); err != nil {
		return s.fail(s.newSpawnError("initialized", err))
	}

	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.initialized = true
	s.mu.Unlock()

	for _, n := range queue {
		_ = s.conn.SendNotification(n.method, n.params)
	}

	return nil
}

// sendInitialize sends the initialize request, retrying exactly once if the
// first attempt times out: a slow server cold-starting is indistinguishable
// from a dead one on the first try (SPEC_FULL §C.1). Any other failure is
// permanent and not retried.
func (s *Skeleton) sendInitialize(ctx context.Context, params any) (json.RawMessage, error) {
	return backoff.Retry(ctx, func() (json.RawMessage, error) {
		raw, err := s.conn.SendRequest(ctx, "initialize", params, s.cfg.RequestTimeout)
		if err != nil {
			var timeoutErr *jsonrpc.TimeoutError
			if !errors.As(err, &timeoutErr) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return raw, nil
	}, backoff.WithMaxTries(2))
}

func (s *Skeleton) fail(cause error) error {
	s.mu.Lock()
	s.initErr = cause
	s.queue = nil
	s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close(cause)
	}
	if s.proc != nil {
		_ = s.proc.terminate()
	}
	return cause
}

// negotiateSync reads capabilities.textDocumentSync from an initialize
// result: either a TextDocumentSyncKind number, or a
// TextDocumentSyncOptions object. Absent entirely, the default is
// "incremental, open/close on" (spec.md §4.9).
func (s *Skeleton) negotiateSync(raw json.RawMessage) {
	var result struct {
		Capabilities struct {
			TextDocumentSync json.RawMessage `json:"textDocumentSync"`
		} `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Capabilities.TextDocumentSync) == 0 {
		return
	}

	var kind int
	if err := json.Unmarshal(result.Capabilities.TextDocumentSync, &kind); err == nil {
		s.mu.Lock()
		s.syncKind = SyncKind(kind)
		s.syncOpenClose = kind != int(SyncNone)
		s.mu.Unlock()
		return
	}

	var opts struct {
		OpenClose *bool `json:"openClose"`
		Change    *int  `json:"change"`
	}
	if err := json.Unmarshal(result.Capabilities.TextDocumentSync, &opts); err == nil {
		s.mu.Lock()
		if opts.OpenClose != nil {
			s.syncOpenClose = *opts.OpenClose
		}
		if opts.Change != nil {
			s.syncKind = SyncKind(*opts.Change)
		}
		s.mu.Unlock()
	}
}

func (s *Skeleton) sendOrQueue(method string, params any) error {
	s.mu.Lock()
	if !s.initialized {
		s.queue = append(s.queue, queuedNotification{method: method, params: params})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.conn.SendNotification(method, params)
}

// OpenDocument emits textDocument/didOpen, unless the negotiated sync
// options have openClose disabled.
func (s *Skeleton) OpenDocument(uri, languageID string, version int32, text string) error {
	s.mu.Lock()
	openClose := s.syncOpenClose
	s.mu.Unlock()
	if !openClose {
		return nil
	}
	return s.sendOrQueue("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    version,
			"text":       text,
		},
	})
}

// UpdateDocument emits textDocument/didChange shaped per the negotiated
// sync kind: suppressed for none, one full-text change for full,
// the caller's ranged changes for incremental (falling back to a full-text
// change if none were supplied).
func (s *Skeleton) UpdateDocument(uri string, version int32, changes []document.ContentChange, fullText string) error {
	s.mu.Lock()
	kind := s.syncKind
	s.mu.Unlock()

	var wireChanges []map[string]any
	switch kind {
	case SyncNone:
		return nil
	case SyncFull:
		wireChanges = []map[string]any{{"text": fullText}}
	case SyncIncremental:
		if len(changes) == 0 {
			wireChanges = []map[string]any{{"text": fullText}}
			break
		}
		for _, c := range changes {
			wireChanges = append(wireChanges, contentChangeToWire(c))
		}
	}

	return s.sendOrQueue("textDocument/didChange", map[string]any{
		"textDocument": map[string]any{
			"uri":     uri,
			"version": version,
		},
		"contentChanges": wireChanges,
	})
}

func contentChangeToWire(c document.ContentChange) map[string]any {
	if c.Range == nil {
		return map[string]any{"text": c.Text}
	}
	return map[string]any{
		"range": rangeToWire(*c.Range),
		"text":  c.Text,
	}
}

func rangeToWire(r lsp.Range) map[string]any {
	return map[string]any{
		"start": map[string]any{"line": r.Start.Line, "character": r.Start.Character},
		"end":   map[string]any{"line": r.End.Line, "character": r.End.Character},
	}
}

// CloseDocument emits textDocument/didClose, unless the negotiated sync
// options have openClose disabled.
func (s *Skeleton) CloseDocument(uri string) error {
	s.mu.Lock()
	openClose := s.syncOpenClose
	s.mu.Unlock()
	if !openClose {
		return nil
	}
	return s.sendOrQueue("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
}

// SendRequest is the escape hatch for an adapter handler that needs to talk
// to the child server directly.
func (s *Skeleton) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.conn.SendRequest(ctx, method, params, s.cfg.RequestTimeout)
}

// SendNotification is the escape hatch mirror of SendRequest.
func (s *Skeleton) SendNotification(method string, params any) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
	return s.sendOrQueue(method, params)
}

// onServerRequest answers a server-initiated request: workspace/applyEdit is
// handled directly against the Adapter Context; everything else is
// forwarded to HandleServerRequest.
func (s *Skeleton) onServerRequest(_ context.Context, method string, params json.RawMessage) (any, *jsonrpc.RemoteError) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return nil, jsonrpc.NewRemoteError(-32603, "no request handler installed", nil)
	}

	if method == "workspace/applyEdit" {
		edit, err := parseApplyEditParams(params)
		if err != nil {
			return nil, jsonrpc.NewRemoteError(-32602, "invalid params: "+err.Error(), nil)
		}
		result := h.ApplyWorkspaceEdit(edit)
		resp := map[string]any{"applied": result.Applied}
		if result.FailureReason != "" {
			resp["failureReason"] = result.FailureReason
		}
		if result.FailedChange != nil {
			resp["failedChange"] = *result.FailedChange
		}
		return resp, nil
	}

	var generic any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &generic); err != nil {
			return nil, jsonrpc.NewRemoteError(-32602, "invalid params: "+err.Error(), nil)
		}
	}

	result, err := h.HandleServerRequest(method, generic)
	if err != nil {
		return nil, jsonrpc.NewRemoteError(-32603, err.Error(), nil)
	}
	return result, nil
}

// applyEditWire mirrors LSP's ApplyWorkspaceEditParams.edit shape.
type applyEditWire struct {
	Edit struct {
		Changes         map[string][]textEditWire `json:"changes"`
		DocumentChanges []documentChangeWire       `json:"documentChanges"`
	} `json:"edit"`
}

type textEditWire struct {
	Range   lsp.Range `json:"range"`
	NewText string    `json:"newText"`
}

type documentChangeWire struct {
	Kind    string `json:"kind"`
	OldURI  string `json:"oldUri"`
	NewURI  string `json:"newUri"`
	URI     string `json:"uri"`
	TextDoc struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
	Edits []textEditWire `json:"edits"`
}

func parseApplyEditParams(raw json.RawMessage) (workspaceedit.Edit, error) {
	var wire applyEditWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return workspaceedit.Edit{}, err
	}

	edit := workspaceedit.Edit{}
	for _, dc := range wire.Edit.DocumentChanges {
		switch dc.Kind {
		case "rename":
			edit.DocumentChanges = append(edit.DocumentChanges, workspaceedit.RawDocumentChange{
				Kind: workspaceedit.ChangeRename, OldURI: dc.OldURI, NewURI: dc.NewURI,
			})
		case "create":
			edit.DocumentChanges = append(edit.DocumentChanges, workspaceedit.RawDocumentChange{
				Kind: workspaceedit.ChangeCreate, URI: dc.URI,
			})
		case "delete":
			edit.DocumentChanges = append(edit.DocumentChanges, workspaceedit.RawDocumentChange{
				Kind: workspaceedit.ChangeDelete, URI: dc.URI,
			})
		default:
			edit.DocumentChanges = append(edit.DocumentChanges, workspaceedit.RawDocumentChange{
				Kind: workspaceedit.ChangeEdit, URI: dc.TextDoc.URI, Edits: toRawTextEdits(dc.Edits),
			})
		}
	}
	for uri, edits := range wire.Edit.Changes {
		edit.Changes = append(edit.Changes, workspaceedit.RawChangeEntry{URI: uri, Edits: toRawTextEdits(edits)})
	}
	return edit, nil
}

func toRawTextEdits(wire []textEditWire) []workspaceedit.RawTextEdit {
	out := make([]workspaceedit.RawTextEdit, len(wire))
	for i, w := range wire {
		r := w.Range
		out[i] = workspaceedit.RawTextEdit{Range: &r, NewText: w.NewText}
	}
	return out
}

// Shutdown races the LSP `shutdown` request against a fixed grace window,
// sends `exit` best-effort, disposes the connection, and terminates the
// process (spec.md §4.9).
func (s *Skeleton) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.shuttingDown = true
	s.mu.Unlock()
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeoutCause(ctx, s.cfg.ShutdownGrace, ErrShutdownTimeout)
	defer cancel()
	_, shutdownErr := s.conn.SendRequest(shutdownCtx, "shutdown", nil, s.cfg.ShutdownGrace)

	_ = s.conn.SendNotification("exit", nil)
	s.conn.Close(shutdownErr)
	return s.proc.terminate()
}

// State reports the negotiated sync options, for tests and diagnostics.
func (s *Skeleton) State() (openClose bool, kind SyncKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncOpenClose, s.syncKind
}
