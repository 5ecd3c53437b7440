package adapter

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a record's position in the registering -> {initializing} ->
// {ready|failed} -> disposed state machine (spec.md §3).
type State string

const (
	StateRegistering  State = "registering"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
	StateDisposed     State = "disposed"
)

// deferredOp is one buffered document-sync call, held on a record while it
// is registering/initializing and drained in arrival order on transition to
// ready (spec.md §4.4, testable property 6).
type deferredOp struct {
	op      Operation
	payload DocSyncPayload
}

// Record is one registered adapter: its static registration shape plus
// mutable lifecycle state, queue, and disposables. Instance carries an
// opaque identity distinct from LanguageID so re-registration under the
// same languageId after disposal is never confused with the prior
// incarnation by anything holding a stale reference (SPEC_FULL §C.2).
type Record struct {
	Instance     uuid.UUID
	LanguageID   string
	DisplayName  string
	Capabilities map[string]any
	Handlers     map[Operation]HandlerFunc
	Dispose      func(ctx any) error

	RegisteredAt  time.Time
	InitializedAt time.Time

	mu          sync.Mutex
	state       State
	failureErr  error
	queue       []deferredOp
	disposables []func()
}

func newRecord(opts Options) *Record {
	return &Record{
		Instance:     uuid.New(),
		LanguageID:   opts.LanguageID,
		DisplayName:  opts.DisplayName,
		Capabilities: opts.Capabilities,
		Handlers:     opts.Handlers,
		Dispose:      opts.Dispose,
		RegisteredAt: time.Now(),
		state:        StateRegistering,
	}
}

// State returns the record's current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// FailureCause returns the error that put the record in StateFailed, or nil.
func (r *Record) FailureCause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureErr
}

// RegisterDisposable attaches a cleanup function invoked once, in
// registration order, during Unregister.
func (r *Record) RegisterDisposable(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposables = append(r.disposables, fn)
}

// enqueue buffers a document-sync operation while the record is not yet
// ready. Returns false if the record is already ready (caller should
// dispatch immediately instead).
func (r *Record) enqueue(op Operation, payload DocSyncPayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReady {
		return false
	}
	r.queue = append(r.queue, deferredOp{op: op, payload: payload})
	return true
}

// markReady transitions registering/initializing -> ready and returns the
// buffered queue for the caller to flush, in FIFO order, outside the lock.
func (r *Record) markReady() []deferredOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateReady
	r.InitializedAt = time.Now()
	queue := r.queue
	r.queue = nil
	return queue
}

// markFailed transitions registering/initializing -> failed and returns the
// buffered queue so the caller can report each entry through the
// adapter-error channel.
func (r *Record) markFailed(cause error) []deferredOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateFailed
	r.failureErr = cause
	queue := r.queue
	r.queue = nil
	return queue
}

func (r *Record) markInitializing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateInitializing
}

// markDisposed transitions the record to disposed and drops any buffered
// document-sync operations, so a later initialize completion has nothing to
// flush.
func (r *Record) markDisposed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDisposed
	r.queue = nil
}

func (r *Record) takeDisposables() []func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fns := r.disposables
	r.disposables = nil
	return fns
}
