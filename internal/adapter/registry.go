package adapter

import (
	"sync"
)

// ErrorReporter surfaces an adapter-level failure on the Event Bus's
// adapter-error channel (spec.md §4.7's `{languageId, operation, error}`).
type ErrorReporter func(languageID string, operation Operation, err error)

// ContextBuilder constructs the Adapter Context handed to a record's
// Initialize/Dispose/document-sync handlers. It returns `any` to avoid a
// package cycle; the concrete type is internal/adaptercontext.Context,
// wired in by the root package at construction time.
type ContextBuilder func(rec *Record) any

// Registry is the mutex-guarded map of registered adapters (spec.md C4),
// grounded on internal/async/resolver.go's register-by-id registry shape.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	buildContext ContextBuilder
	reportError  ErrorReporter
}

// NewRegistry returns an empty registry. buildContext and reportError are
// invoked outside the registry's own lock, so they may safely call back
// into the registry (e.g. a document handler calling Get).
func NewRegistry(buildContext ContextBuilder, reportError ErrorReporter) *Registry {
	return &Registry{
		records:      make(map[string]*Record),
		buildContext: buildContext,
		reportError:  reportError,
	}
}

// Register validates and inserts a new record. If opts.Initialize is nil the
// record is ready before Register returns; otherwise Register returns once
// the record has reached state initializing, and initialization proceeds on
// a background goroutine.
func (reg *Registry) Register(opts Options) (*Record, error) {
	if opts.LanguageID == "" {
		return nil, &InvalidAdapterError{Reason: "languageId must not be empty"}
	}
	if opts.Handlers == nil {
		opts.Handlers = make(map[Operation]HandlerFunc)
	}

	reg.mu.Lock()
	if _, exists := reg.records[opts.LanguageID]; exists {
		reg.mu.Unlock()
		return nil, &LanguageExistsError{LanguageID: opts.LanguageID}
	}
	rec := newRecord(opts)
	reg.records[opts.LanguageID] = rec
	reg.mu.Unlock()

	if opts.Initialize == nil {
		reg.flushReady(rec)
		return rec, nil
	}

	rec.markInitializing()
	ctx := reg.buildContext(rec)
	go reg.runInitialize(rec, opts.Initialize, ctx)
	return rec, nil
}

func (reg *Registry) runInitialize(rec *Record, initialize func(ctx any) error, ctx any) {
	err := initialize(ctx)
	if err != nil {
		reg.failRecord(rec, err)
		return
	}
	reg.flushReady(rec)
}

// flushReady transitions rec to ready and dispatches every buffered
// document-sync op in FIFO order.
func (reg *Registry) flushReady(rec *Record) {
	queue := rec.markReady()
	for _, op := range queue {
		reg.dispatchSync(rec, op.op, op.payload)
	}
}

func (reg *Registry) failRecord(rec *Record, cause error) {
	queue := rec.markFailed(cause)
	for _, op := range queue {
		if reg.reportError != nil {
			reg.reportError(rec.LanguageID, op.op, cause)
		}
	}

	reg.mu.Lock()
	delete(reg.records, rec.LanguageID)
	reg.mu.Unlock()

	reg.removeAndDispose(rec)
}

// Get returns the record for languageID, or UnknownLanguageError.
func (reg *Registry) Get(languageID string) (*Record, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.records[languageID]
	if !ok {
		return nil, &UnknownLanguageError{LanguageID: languageID}
	}
	return rec, nil
}

// All returns every currently registered record (any state), for routing
// fallback and host introspection.
func (reg *Registry) All() []*Record {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Record, 0, len(reg.records))
	for _, rec := range reg.records {
		out = append(out, rec)
	}
	return out
}

// RequireReady enforces the readiness gate (spec.md §4.4): ready records
// pass; failed records raise FailedError; any other state raises
// NotReadyError.
func (reg *Registry) RequireReady(languageID string) (*Record, error) {
	rec, err := reg.Get(languageID)
	if err != nil {
		return nil, err
	}
	switch rec.State() {
	case StateReady:
		return rec, nil
	case StateFailed:
		return nil, &FailedError{LanguageID: languageID, Cause: rec.FailureCause()}
	default:
		return nil, &NotReadyError{LanguageID: languageID, State: rec.State()}
	}
}

// DispatchDocSync delivers a document-sync operation to the owning record:
// immediately if ready, or enqueued if registering/initializing. Unlike
// routed feature requests, this never raises NotReadyError to the caller.
func (reg *Registry) DispatchDocSync(languageID string, op Operation, payload DocSyncPayload) error {
	rec, err := reg.Get(languageID)
	if err != nil {
		return err
	}
	if rec.enqueue(op, payload) {
		return nil
	}
	reg.dispatchSync(rec, op, payload)
	return nil
}

func (reg *Registry) dispatchSync(rec *Record, op Operation, payload DocSyncPayload) {
	handler, ok := rec.Handlers[op]
	if !ok {
		return
	}
	ctx := reg.buildContext(rec)
	if _, err := handler(payload, ctx); err != nil && reg.reportError != nil {
		reg.reportError(rec.LanguageID, op, err)
	}
}

// Unregister drains rec's queue, runs its Dispose handler, runs its
// disposables, and removes it from the registry. Errors during disposal are
// reported through reportError but never prevent completion (spec.md
// §4.4's Unregistration).
func (reg *Registry) Unregister(languageID string) error {
	reg.mu.Lock()
	rec, ok := reg.records[languageID]
	if !ok {
		reg.mu.Unlock()
		return &UnknownLanguageError{LanguageID: languageID}
	}
	delete(reg.records, languageID)
	reg.mu.Unlock()

	rec.markDisposed()
	reg.removeAndDispose(rec)
	return nil
}

func (reg *Registry) removeAndDispose(rec *Record) {
	if rec.Dispose != nil {
		ctx := reg.buildContext(rec)
		if err := rec.Dispose(ctx); err != nil && reg.reportError != nil {
			reg.reportError(rec.LanguageID, "dispose", err)
		}
	}
	for _, fn := range rec.takeDisposables() {
		fn()
	}
}

// DisposeAll unregisters every record, used by the client's shutdown
// sequence. Order is unspecified; each language's teardown is independent.
func (reg *Registry) DisposeAll() {
	for _, rec := range reg.All() {
		_ = reg.Unregister(rec.LanguageID)
	}
}
