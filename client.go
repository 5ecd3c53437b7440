// Package polyclient implements PolyClient, a multiplexing Language Server
// Protocol client hub: one host-facing API in front of any number of
// per-language adapters, each either a thin in-process handler table or a
// real LSP child process driven through internal/backend's C9 skeleton.
package polyclient

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/wharflab/polyclient/internal/adapter"
	"github.com/wharflab/polyclient/internal/adaptercontext"
	"github.com/wharflab/polyclient/internal/document"
	"github.com/wharflab/polyclient/internal/eventbus"
	"github.com/wharflab/polyclient/internal/router"
	"github.com/wharflab/polyclient/internal/workspaceedit"
)

// AdapterContext is the capability surface handed to an adapter's
// Initialize/Dispose hooks (spec.md §4.8's Adapter Context).
type AdapterContext = adaptercontext.Context

// RequestContext is the lighter per-call context handed to a routed
// feature-request handler (spec.md §4.8's Request Context).
type RequestContext = adaptercontext.RequestContext

// Document is a defensive snapshot of one open document.
type Document = document.Document

// ContentChange is one entry of an update's changes list.
type ContentChange = document.ContentChange

// WorkspaceEdit is a full workspace-edit package (spec.md §3).
type WorkspaceEdit = workspaceedit.Edit

// EditResult is the host-facing outcome of ApplyWorkspaceEdit.
type EditResult = workspaceedit.Result

// EditFailure describes one change within a WorkspaceEdit that could not be
// applied.
type EditFailure = workspaceedit.Failure

// TextEdit is one entry of an edit list targeting a single URI.
type TextEdit = workspaceedit.RawTextEdit

// DocumentChange is one entry of a WorkspaceEdit's DocumentChanges list.
type DocumentChange = workspaceedit.RawDocumentChange

// ChangeEntry is one URI's edit list from a WorkspaceEdit's legacy Changes
// map form, represented as an ordered slice (see workspaceedit.RawChangeEntry).
type ChangeEntry = workspaceedit.RawChangeEntry

// ChangeKind tags one DocumentChange entry.
type ChangeKind = workspaceedit.ChangeKind

const (
	ChangeEdit   = workspaceedit.ChangeEdit
	ChangeRename = workspaceedit.ChangeRename
	ChangeCreate = workspaceedit.ChangeCreate
	ChangeDelete = workspaceedit.ChangeDelete
)

// Subscription is returned by every On* subscription method.
type Subscription = eventbus.Subscription

// DiagnosticsEvent is delivered to a per-URI diagnostics listener.
type DiagnosticsEvent = eventbus.DiagnosticsEvent

// WorkspaceEvent is delivered to a per-kind workspace-event listener.
type WorkspaceEvent = eventbus.WorkspaceEvent

// NotificationEvent is delivered to a per-method notification listener.
type NotificationEvent = eventbus.NotificationEvent

// AdapterErrorEvent is delivered to every adapter-error listener.
type AdapterErrorEvent = eventbus.AdapterErrorEvent

// ServerRequestEvent is offered to an OnServerRequest listener for a
// server-initiated request method the Adapter Context has no built-in
// handler for.
type ServerRequestEvent = eventbus.RequestEvent

// ServerRequestListener answers a ServerRequestEvent. ok reports whether it
// produced an answer; a listener with nothing to say for this event
// returns ok == false so the next registered listener gets a turn.
type ServerRequestListener = eventbus.RequestListener

// Client is the host-facing PolyClient hub, tying together the document
// store, adapter registry, router, workspace-edit engine, and event bus
// (spec.md §2's component diagram).
type Client struct {
	opts ClientOptions

	docs     *document.Store
	registry *adapter.Registry
	router   *router.Router
	edits    *workspaceedit.Engine
	bus      *eventbus.Bus

	disposed atomic.Bool
}

// New constructs a Client. Adapters are registered afterward via
// RegisterAdapter.
func New(opts ClientOptions) (*Client, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	docs := document.NewStore()
	bus := eventbus.New()

	c := &Client{
		opts: opts,
		docs: docs,
		bus:  bus,
	}

	c.registry = adapter.NewRegistry(c.buildContext, c.reportAdapterError)
	c.router = router.New(c.registry, docs)
	c.edits = workspaceedit.New(docs, c.registry)

	return c, nil
}

func (c *Client) buildContext(rec *adapter.Record) any {
	return adaptercontext.New(rec, c.docs, c.registry, c.bus, c.edits, c.opts.WorkspaceFolders)
}

func (c *Client) reportAdapterError(languageID string, op adapter.Operation, err error) {
	c.opts.Logger.Warn("adapter error", slog.String("languageId", languageID), slog.String("operation", string(op)), slog.Any("error", err))
	c.bus.ReportAdapterError(languageID, string(op), err)
}

// checkDisposed returns ErrClientDisposed once Dispose has completed.
func (c *Client) checkDisposed() error {
	if c.disposed.Load() {
		return ErrClientDisposed
	}
	return nil
}

// RegisterAdapter validates and inserts a new adapter record (spec.md
// §4.4's Registration). If opts.Initialize is nil the adapter is ready
// before RegisterAdapter returns.
func (c *Client) RegisterAdapter(opts AdapterOptions) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if opts.LanguageID == "" {
		return newError(KindInvalidAdapter, "languageId must not be empty")
	}

	internalOpts := adapter.Options{
		LanguageID:   opts.LanguageID,
		DisplayName:  opts.DisplayName,
		Capabilities: opts.Capabilities,
		Handlers:     mergeHandlers(opts.Handlers, opts.DocSync),
	}
	if opts.Initialize != nil {
		internalOpts.Initialize = func(ctx any) error {
			return opts.Initialize(mustAdapterContext(ctx))
		}
	}
	if opts.Dispose != nil {
		internalOpts.Dispose = func(ctx any) error {
			return opts.Dispose(mustAdapterContext(ctx))
		}
	}

	_, err := c.registry.Register(internalOpts)
	return translateAdapterError(err)
}

// UnregisterAdapter drains the record's queue, runs its Dispose hook and
// registered disposables, and removes it (spec.md §4.4's Unregistration).
func (c *Client) UnregisterAdapter(languageID string) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	return translateAdapterError(c.registry.Unregister(languageID))
}

// mergeHandlers builds the internal handler table from the two host-facing
// maps: routed feature handlers (which get the lighter Request Context) and
// document-sync handlers (which get the full Adapter Context).
func mergeHandlers(handlers map[adapter.Operation]HandlerFunc, docSync map[adapter.Operation]DocSyncHandlerFunc) map[adapter.Operation]adapter.HandlerFunc {
	out := make(map[adapter.Operation]adapter.HandlerFunc, len(handlers)+len(docSync))
	for op, fn := range handlers {
		fn := fn
		out[op] = func(params any, reqCtx any) (any, error) {
			return fn(params, mustRequestContext(reqCtx))
		}
	}
	for op, fn := range docSync {
		fn := fn
		out[op] = func(params any, ctx any) (any, error) {
			payload, _ := params.(adapter.DocSyncPayload)
			return nil, fn(payload, mustAdapterContext(ctx))
		}
	}
	return out
}

func mustAdapterContext(ctx any) *AdapterContext {
	c, _ := ctx.(*AdapterContext)
	return c
}

func mustRequestContext(ctx any) *RequestContext {
	c, _ := ctx.(*RequestContext)
	return c
}

// Open registers a new document, requiring languageID to name an already
// registered adapter (spec.md §4.3's open).
func (c *Client) Open(uri, languageID string, version int32, text string) (Document, error) {
	if err := c.checkDisposed(); err != nil {
		return Document{}, err
	}
	if _, err := c.registry.Get(languageID); err != nil {
		return Document{}, translateAdapterError(err)
	}

	doc, err := c.docs.Open(uri, languageID, version, text)
	if err != nil {
		return Document{}, translateDocumentError(err)
	}

	_ = c.registry.DispatchDocSync(languageID, adapter.OpOpenDocument, adapter.DocSyncPayload{
		URI: doc.URI, LanguageID: doc.LanguageID, Version: doc.Version, Text: doc.Text,
	})
	return *doc, nil
}

// Update applies changes to an already-open document (spec.md §4.3's
// update). An empty changes list is accepted: it only bumps the version.
func (c *Client) Update(uri string, version int32, changes []ContentChange) (Document, error) {
	if err := c.checkDisposed(); err != nil {
		return Document{}, err
	}

	doc, err := c.docs.Update(uri, version, changes)
	if err != nil {
		return Document{}, translateDocumentError(err)
	}

	payloadChanges := any(changes)
	if len(changes) == 0 {
		payloadChanges = []ContentChange{{Text: doc.Text}}
	}
	_ = c.registry.DispatchDocSync(doc.LanguageID, adapter.OpUpdateDocument, adapter.DocSyncPayload{
		URI: doc.URI, LanguageID: doc.LanguageID, Version: doc.Version, Text: doc.Text, Changes: payloadChanges,
	})
	return *doc, nil
}

// Close removes a document and notifies its owning adapter (spec.md §4.3's
// close). Closing a URI that isn't open is a no-op.
func (c *Client) Close(uri string) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}

	doc, getErr := c.docs.Get(uri)
	if err := c.docs.Close(uri); err != nil {
		return translateDocumentError(err)
	}
	if getErr == nil {
		_ = c.registry.DispatchDocSync(doc.LanguageID, adapter.OpCloseDocument, adapter.DocSyncPayload{
			URI: doc.URI, LanguageID: doc.LanguageID,
		})
	}
	return nil
}

// GetDocument returns a defensive copy of the open document at uri.
func (c *Client) GetDocument(uri string) (Document, error) {
	if err := c.checkDisposed(); err != nil {
		return Document{}, err
	}
	doc, err := c.docs.Get(uri)
	if err != nil {
		return Document{}, translateDocumentError(err)
	}
	return doc, nil
}

// invoke resolves params to a target adapter, enforces the readiness gate,
// and dispatches op (spec.md §4.5, the second half after resolution).
func (c *Client) invoke(op adapter.Operation, params any) (any, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}

	rec, err := c.router.Resolve(params)
	if err != nil {
		return nil, translateRouterError(err)
	}
	if _, err := c.registry.RequireReady(rec.LanguageID); err != nil {
		return nil, translateAdapterError(err)
	}

	handler, ok := rec.Handlers[op]
	if !ok {
		return nil, translateAdapterError(&adapter.UnsupportedError{LanguageID: rec.LanguageID, Operation: op})
	}

	reqCtx := adaptercontext.NewRequestContext(rec.LanguageID, c.opts.Metadata, c.opts.WorkspaceFolders, c.docs)
	result, err := handler(params, reqCtx)
	if err != nil {
		c.reportAdapterError(rec.LanguageID, op, err)
		return nil, err
	}
	return result, nil
}

func notSupportedMsg(languageID string, op adapter.Operation) string {
	return "language " + languageID + " does not support " + string(op)
}

// Completions routes a completions request to the owning adapter.
func (c *Client) Completions(params any) (any, error) { return c.invoke(adapter.OpCompletions, params) }

// Hover routes a hover request to the owning adapter.
func (c *Client) Hover(params any) (any, error) { return c.invoke(adapter.OpHover, params) }

// Definition routes a go-to-definition request to the owning adapter.
func (c *Client) Definition(params any) (any, error) { return c.invoke(adapter.OpDefinition, params) }

// References routes a find-references request to the owning adapter.
func (c *Client) References(params any) (any, error) { return c.invoke(adapter.OpReferences, params) }

// CodeActions routes a code-actions request to the owning adapter.
func (c *Client) CodeActions(params any) (any, error) { return c.invoke(adapter.OpCodeActions, params) }

// DocumentHighlights routes a document-highlights request to the owning
// adapter.
func (c *Client) DocumentHighlights(params any) (any, error) {
	return c.invoke(adapter.OpDocumentHighlights, params)
}

// DocumentSymbols routes a document-symbols request to the owning adapter.
func (c *Client) DocumentSymbols(params any) (any, error) {
	return c.invoke(adapter.OpDocumentSymbols, params)
}

// Rename routes a rename request to the owning adapter.
func (c *Client) Rename(params any) (any, error) { return c.invoke(adapter.OpRename, params) }

// FormatDocument routes a whole-document format request to the owning
// adapter.
func (c *Client) FormatDocument(params any) (any, error) {
	return c.invoke(adapter.OpFormatDocument, params)
}

// FormatRange routes a ranged format request to the owning adapter.
func (c *Client) FormatRange(params any) (any, error) { return c.invoke(adapter.OpFormatRange, params) }

// SendRequest is the escape hatch for a method PolyClient does not model as
// a named feature request. With ≥2 adapters registered, params must carry
// an explicit languageId or recognized document URI (spec.md §4.5).
func (c *Client) SendRequest(method string, params any) (any, error) {
	return c.invoke(adapter.OpSendRequest, wrapEscapeHatch(method, params))
}

// SendNotification is the fire-and-forget escape hatch counterpart to
// SendRequest.
func (c *Client) SendNotification(method string, params any) error {
	_, err := c.invoke(adapter.OpSendNotification, wrapEscapeHatch(method, params))
	return err
}

// wrapEscapeHatch carries the caller's routing hint alongside method/params
// so the router can still resolve an adapter for sendRequest/sendNotification
// (spec.md §6: these remain subject to explicit routing).
func wrapEscapeHatch(method string, params any) any {
	obj, ok := params.(map[string]any)
	if !ok {
		return map[string]any{"method": method}
	}
	wrapped := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		wrapped[k] = v
	}
	wrapped["method"] = method
	return wrapped
}

// ApplyWorkspaceEdit applies a multi-file edit package (spec.md §4.6).
func (c *Client) ApplyWorkspaceEdit(edit WorkspaceEdit) (*EditResult, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	return c.edits.Apply(edit), nil
}

// OnDiagnostics subscribes to diagnostics published for uri.
func (c *Client) OnDiagnostics(uri string, listener func(DiagnosticsEvent)) *Subscription {
	return c.bus.OnDiagnostics(uri, listener)
}

// OnWorkspaceEvent subscribes to workspace events of the given kind.
func (c *Client) OnWorkspaceEvent(kind string, listener func(WorkspaceEvent)) *Subscription {
	return c.bus.OnWorkspaceEvent(kind, listener)
}

// OnNotification subscribes to server notifications for the given method.
func (c *Client) OnNotification(method string, listener func(NotificationEvent)) *Subscription {
	return c.bus.OnNotification(method, listener)
}

// OnError subscribes to every adapter-error event.
func (c *Client) OnError(listener func(AdapterErrorEvent)) *Subscription {
	return c.bus.OnError(listener)
}

// OnServerRequest registers an answerer for server-initiated request
// methods the Adapter Context has no built-in handler for (spec.md §4.8).
// Listeners for the same method are tried in registration order; the first
// to return ok == true supplies the answer.
func (c *Client) OnServerRequest(method string, listener ServerRequestListener) *Subscription {
	return c.bus.OnRequest(method, listener)
}

// Dispose tears down every adapter and clears every subscription table
// (spec.md §9's Disposal Ordering). It is idempotent: a second and later
// call observes the same state and returns nil without doing further work.
func (c *Client) Dispose(_ context.Context) error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	c.registry.DisposeAll()
	c.bus.Dispose()
	return nil
}

func translateDocumentError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *document.InvalidURIError:
		return wrapError(KindInvalidURI, e, "invalid uri %q", e.URI)
	case *document.NotOpenError:
		return wrapError(KindDocumentNotOpen, e, "document %q is not open", e.URI)
	case *document.VersionError:
		return wrapError(KindInvalidVersion, e, "version %d is not greater than current version %d", e.Want, e.Have)
	case *document.InvalidChangeError:
		return wrapError(KindInvalidChange, e, "invalid change for %q", e.URI)
	default:
		return wrapError(KindProtocolError, err, "document operation failed")
	}
}

func translateAdapterError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *adapter.InvalidAdapterError:
		return wrapError(KindInvalidAdapter, e, "%s", e.Reason)
	case *adapter.LanguageExistsError:
		return wrapError(KindLanguageExists, e, "language %q is already registered", e.LanguageID)
	case *adapter.UnknownLanguageError:
		return wrapError(KindUnknownLanguage, e, "unknown language %q", e.LanguageID)
	case *adapter.NotReadyError:
		return wrapError(KindLanguageNotReady, e, "language %q is not ready", e.LanguageID)
	case *adapter.FailedError:
		return wrapError(KindLanguageFailed, e, "language %q failed to initialize", e.LanguageID)
	case *adapter.UnsupportedError:
		return wrapError(KindFeatureUnsupported, e, notSupportedMsg(e.LanguageID, e.Operation))
	default:
		return wrapError(KindProtocolError, err, "adapter operation failed")
	}
}

func translateRouterError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *router.UnknownLanguageError:
		return wrapError(KindUnknownLanguage, e, "unknown language %q", e.LanguageID)
	case *router.DocumentNotOpenError:
		return wrapError(KindDocumentNotOpen, e, "document %q is not open", e.URI)
	case *router.NotResolvedError:
		return ErrLanguageNotResolved
	default:
		return wrapError(KindProtocolError, err, "routing failed")
	}
}
