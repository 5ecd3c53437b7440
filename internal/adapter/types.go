package adapter

// Operation is the closed enumeration of things a registered adapter may
// implement a handler for. Re-expressing the source's string-keyed handler
// dictionary as a closed enum (spec.md §9 "Duck-typed handler tables →
// explicit capability enum") makes routing's FeatureUnsupported check a map
// lookup instead of a guess about what's present.
type Operation string

const (
	OpCompletions        Operation = "completions"
	OpHover              Operation = "hover"
	OpDefinition         Operation = "definition"
	OpReferences         Operation = "references"
	OpCodeActions        Operation = "codeActions"
	OpDocumentHighlights Operation = "documentHighlights"
	OpDocumentSymbols    Operation = "documentSymbols"
	OpRename             Operation = "rename"
	OpFormatDocument     Operation = "formatDocument"
	OpFormatRange        Operation = "formatRange"
	OpSendRequest        Operation = "sendRequest"
	OpSendNotification   Operation = "sendNotification"

	// OpenDocument/UpdateDocument/CloseDocument are document-sync
	// operations: they are never gated behind FeatureUnsupported (every
	// adapter is expected to accept them, even as a no-op) and are the
	// operations eligible for the registering/initializing deferred queue.
	OpOpenDocument   Operation = "openDocument"
	OpUpdateDocument Operation = "updateDocument"
	OpCloseDocument  Operation = "closeDocument"
)

// HandlerFunc answers one routed operation. params and the returned result
// are opaque to the registry and router; reqCtx is the per-call Request
// Context built by C8, passed as `any` here to avoid a package cycle
// (internal/adaptercontext depends on this package, not the reverse).
type HandlerFunc func(params any, reqCtx any) (any, error)

// DocSyncPayload is the structured payload document-sync handlers receive,
// shared across openDocument/updateDocument/closeDocument (spec.md §4.3).
type DocSyncPayload struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
	// Changes is non-nil only for updateDocument, and holds either the
	// supplied changes ([]document.ContentChange from an update, or
	// []document.TextEdit from a workspace edit) or, when none were
	// supplied, a single synthesized full-text []document.ContentChange.
	Changes any
}

// Options describes one adapter registration, the host-facing shape
// described in spec.md §6's "Adapter-facing contract".
type Options struct {
	LanguageID   string
	DisplayName  string
	Capabilities map[string]any
	Handlers     map[Operation]HandlerFunc

	// Initialize, if non-nil, is run on a goroutine immediately after
	// registration; the record stays in state initializing until it
	// returns. A nil Initialize transitions the record straight to ready,
	// synchronously, before Register returns.
	Initialize func(ctx any) error

	// Dispose, if non-nil, runs during Unregister after the queue has been
	// drained and before registered disposables run.
	Dispose func(ctx any) error
}
