package polyclient

import (
	"log/slog"

	"github.com/wharflab/polyclient/internal/adapter"
)

// ClientOptions is the host-facing construction shape (spec.md §6). Zero
// values default the same way the teacher's config.Default() documents its
// defaults: assigned once, in New, not scattered through the codebase.
type ClientOptions struct {
	// Transport names the wire transport adapters speak over. "stdio" is the
	// only transport this hub implements; present as a field (rather than
	// hardcoded) because spec.md's constructor shape names it explicitly.
	Transport string

	// WorkspaceFolders is the set of filesystem paths handed to adapters as
	// their workspace root and answered verbatim for a server-initiated
	// workspace/workspaceFolders request.
	WorkspaceFolders []string

	// Metadata is an opaque map the host may attach to the client; PolyClient
	// does not interpret it, and hands it to every routed handler as
	// RequestContext.ClientOptions.
	Metadata map[string]any

	// Logger receives a Warn-level structured log entry for every adapter
	// error reported to the adapter-error channel; the client logs nothing
	// else. A nil Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *ClientOptions) setDefaults() {
	if o.Transport == "" {
		o.Transport = "stdio"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// validate rejects a malformed ClientOptions before any component is built.
func (o *ClientOptions) validate() error {
	if o.Transport != "stdio" {
		return newError(KindInvalidOptions, "unsupported transport %q", o.Transport)
	}
	return nil
}

// AdapterOptions is the adapter-facing registration contract (spec.md §6's
// "Adapter-facing contract"): languageId, optional displayName/capabilities,
// optional initialize/dispose lifecycle hooks, and a handlers table keyed by
// operation. It mirrors internal/adapter.Options, except that the handler
// table is split into Handlers and DocSync (merged into one internal table at
// registration); kept as a distinct root-package type so host callers never
// import an internal package to call RegisterAdapter.
type AdapterOptions struct {
	LanguageID   string
	DisplayName  string
	Capabilities map[string]any

	// Handlers answers routed feature requests (completions, hover,
	// definition, ... sendRequest/sendNotification). Operations with no
	// entry here fail routed calls with FeatureUnsupported.
	Handlers map[adapter.Operation]HandlerFunc

	// DocSync answers the three document-sync operations (OpOpenDocument,
	// OpUpdateDocument, OpCloseDocument). These are never gated by
	// FeatureUnsupported: an adapter with no entry simply does not observe
	// the sync call. Unlike Handlers, a sync handler receives the full
	// Adapter Context (it commonly needs to publish diagnostics or emit a
	// workspace event in response to a text change), not the lighter
	// Request Context.
	DocSync map[adapter.Operation]DocSyncHandlerFunc

	// Initialize, if non-nil, runs on a goroutine immediately after
	// registration; Register returns before it completes. It receives the
	// Adapter Context for this registration.
	Initialize func(ctx *AdapterContext) error

	// Dispose, if non-nil, runs during Unregister after the record's queue
	// has drained and before its registered disposables run.
	Dispose func(ctx *AdapterContext) error
}

// HandlerFunc answers one routed feature-request operation against reqCtx,
// the per-call Request Context (spec.md §4.8).
type HandlerFunc func(params any, reqCtx *RequestContext) (any, error)

// DocSyncHandlerFunc answers one document-sync operation (spec.md §4.3).
type DocSyncHandlerFunc func(payload adapter.DocSyncPayload, ctx *AdapterContext) error
