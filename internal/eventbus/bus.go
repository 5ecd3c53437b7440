// Package eventbus is the typed fan-out PolyClient delivers diagnostics,
// workspace events, server notifications, and adapter errors to host
// subscribers through (spec.md C7).
package eventbus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

// DiagnosticsEvent is delivered to a per-URI diagnostics listener.
type DiagnosticsEvent struct {
	URI         string
	LanguageID  string
	Diagnostics []any
}

// WorkspaceEvent is delivered to a per-kind workspace-event listener.
type WorkspaceEvent struct {
	Kind       string
	LanguageID string
	Payload    any
}

// NotificationEvent is delivered to a per-method notification listener, for
// server notifications that aren't diagnostics.
type NotificationEvent struct {
	Method     string
	LanguageID string
	Payload    any
}

// AdapterErrorEvent is delivered to every adapter-error listener.
type AdapterErrorEvent struct {
	LanguageID string
	Operation  string
	Err        error
}

// RequestEvent is delivered to a request-answering listener for a
// server-initiated request method the Adapter Context has no built-in
// handler for (spec.md §4.8: "offered to notification listeners").
type RequestEvent struct {
	Method     string
	LanguageID string
	Params     any
}

// RequestListener answers a RequestEvent. ok reports whether it produced an
// answer at all; a listener with nothing to say returns ok == false so
// AnswerRequest keeps offering the event to the next registered listener.
type RequestListener func(RequestEvent) (result any, ok bool)

// Subscription is returned by every On* call. Cancel is idempotent and safe
// to call after the owning Bus has been disposed.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the listener. Calling it more than once, or after the bus
// itself has been disposed, has no further effect.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

type listenerSet[T any] map[uuid.UUID]func(T)

// Bus holds four independent dispatch tables guarded by one mutex. Each
// publish call snapshots the relevant listener set before invoking
// anything, so a listener calling Cancel (on itself or a sibling) from
// inside a callback never deadlocks or mutates the set being iterated.
type Bus struct {
	mu sync.Mutex

	diagnostics   map[string]listenerSet[DiagnosticsEvent]
	workspace     map[string]listenerSet[WorkspaceEvent]
	notifications map[string]listenerSet[NotificationEvent]
	adapterErrors listenerSet[AdapterErrorEvent]

	// requests holds order-registered request-answering listeners, keyed by
	// method. A plain listenerSet loses registration order (it's a map), and
	// AnswerRequest needs "first non-undefined return value wins" (spec.md
	// §4.8), so each method keeps its own ordered slice instead.
	requestsMu sync.Mutex
	requests   map[string][]requestEntry
}

type requestEntry struct {
	id       uuid.UUID
	listener RequestListener
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		diagnostics:   make(map[string]listenerSet[DiagnosticsEvent]),
		workspace:     make(map[string]listenerSet[WorkspaceEvent]),
		notifications: make(map[string]listenerSet[NotificationEvent]),
		adapterErrors: make(listenerSet[AdapterErrorEvent]),
		requests:      make(map[string][]requestEntry),
	}
}

// OnDiagnostics subscribes to diagnostics published for uri.
func (b *Bus) OnDiagnostics(uri string, listener func(DiagnosticsEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.diagnostics[uri]
	if !ok {
		set = make(listenerSet[DiagnosticsEvent])
		b.diagnostics[uri] = set
	}
	id := uuid.New()
	set[id] = listener
	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.diagnostics[uri], id)
	}}
}

// OnWorkspaceEvent subscribes to workspace events of the given kind.
func (b *Bus) OnWorkspaceEvent(kind string, listener func(WorkspaceEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.workspace[kind]
	if !ok {
		set = make(listenerSet[WorkspaceEvent])
		b.workspace[kind] = set
	}
	id := uuid.New()
	set[id] = listener
	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.workspace[kind], id)
	}}
}

// OnNotification subscribes to server notifications for the given method.
func (b *Bus) OnNotification(method string, listener func(NotificationEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.notifications[method]
	if !ok {
		set = make(listenerSet[NotificationEvent])
		b.notifications[method] = set
	}
	id := uuid.New()
	set[id] = listener
	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.notifications[method], id)
	}}
}

// OnRequest registers a request-answering listener for method. Listeners
// for the same method are offered a RequestEvent in registration order;
// AnswerRequest stops at the first one that answers.
func (b *Bus) OnRequest(method string, listener RequestListener) *Subscription {
	b.requestsMu.Lock()
	defer b.requestsMu.Unlock()
	id := uuid.New()
	b.requests[method] = append(b.requests[method], requestEntry{id: id, listener: listener})
	return &Subscription{cancel: func() {
		b.requestsMu.Lock()
		defer b.requestsMu.Unlock()
		entries := b.requests[method]
		for i, e := range entries {
			if e.id == id {
				b.requests[method] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}}
}

// OnError subscribes to every adapter-error event.
func (b *Bus) OnError(listener func(AdapterErrorEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	b.adapterErrors[id] = listener
	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.adapterErrors, id)
	}}
}

// PublishDiagnostics fans diagnostics out to uri's listeners. diagnostics is
// deep-copied per listener invocation so one listener mutating its slice
// cannot affect another.
func (b *Bus) PublishDiagnostics(uri, languageID string, diagnostics []any) {
	listeners := snapshot(&b.mu, b.diagnostics, uri)
	for _, listener := range listeners {
		invoke(func() {
			listener(DiagnosticsEvent{URI: uri, LanguageID: languageID, Diagnostics: deepCopySlice(diagnostics)})
		}, func(err error) { b.ReportAdapterError(languageID, "publishDiagnostics", err) })
	}
}

// EmitWorkspaceEvent fans a workspace event out to kind's listeners.
func (b *Bus) EmitWorkspaceEvent(kind, languageID string, payload any) {
	listeners := snapshot(&b.mu, b.workspace, kind)
	for _, listener := range listeners {
		invoke(func() {
			listener(WorkspaceEvent{Kind: kind, LanguageID: languageID, Payload: deepCopy(payload)})
		}, func(err error) { b.ReportAdapterError(languageID, "emitWorkspaceEvent", err) })
	}
}

// NotifyClient fans a server notification out to method's listeners.
func (b *Bus) NotifyClient(method, languageID string, payload any) {
	listeners := snapshot(&b.mu, b.notifications, method)
	for _, listener := range listeners {
		invoke(func() {
			listener(NotificationEvent{Method: method, LanguageID: languageID, Payload: payload})
		}, func(err error) { b.ReportAdapterError(languageID, "notifyClient", err) })
	}
}

// AnswerRequest offers method's RequestEvent to each listener registered
// via OnRequest, in registration order, returning the first answer with
// ok == true. Panics are caught the same as any other fan-out (invoke);
// a panicking listener counts as "no answer" and AnswerRequest moves on to
// the next one.
func (b *Bus) AnswerRequest(method, languageID string, params any) (any, bool) {
	b.requestsMu.Lock()
	entries := make([]requestEntry, len(b.requests[method]))
	copy(entries, b.requests[method])
	b.requestsMu.Unlock()

	event := RequestEvent{Method: method, LanguageID: languageID, Params: params}
	for _, e := range entries {
		var result any
		var answered bool
		invoke(func() {
			result, answered = e.listener(event)
		}, func(err error) { b.ReportAdapterError(languageID, "handleServerRequest:"+method, err) })
		if answered {
			return result, true
		}
	}
	return nil, false
}

// ReportAdapterError fans an adapter-level error out to every OnError
// listener.
func (b *Bus) ReportAdapterError(languageID, operation string, err error) {
	b.mu.Lock()
	listeners := make([]func(AdapterErrorEvent), 0, len(b.adapterErrors))
	for _, l := range b.adapterErrors {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, listener := range listeners {
		invoke(func() {
			listener(AdapterErrorEvent{LanguageID: languageID, Operation: operation, Err: err})
		}, nil)
	}
}

// Dispose removes every listener from every table. It is safe to call more
// than once (testable property 2): the second and later calls find empty
// tables and do nothing.
func (b *Bus) Dispose() {
	b.mu.Lock()
	b.diagnostics = make(map[string]listenerSet[DiagnosticsEvent])
	b.workspace = make(map[string]listenerSet[WorkspaceEvent])
	b.notifications = make(map[string]listenerSet[NotificationEvent])
	b.adapterErrors = make(listenerSet[AdapterErrorEvent])
	b.mu.Unlock()

	b.requestsMu.Lock()
	b.requests = make(map[string][]requestEntry)
	b.requestsMu.Unlock()
}

// snapshot copies out the listener functions registered under key, holding
// mu only for the duration of the copy, so invocation never happens while
// holding the bus lock (a listener calling back into the bus, e.g. to
// cancel its own subscription, would otherwise deadlock).
func snapshot[T any](mu *sync.Mutex, table map[string]listenerSet[T], key string) []func(T) {
	mu.Lock()
	defer mu.Unlock()
	set := table[key]
	out := make([]func(T), 0, len(set))
	for _, l := range set {
		out = append(out, l)
	}
	return out
}

// invoke runs fn, routing any panic to onPanic instead of letting it
// propagate and take the rest of the fan-out down with it (spec.md §4.7:
// "Listener exceptions are caught and reported but do not interrupt
// fan-out"). A nil onPanic silently swallows the panic (used when reporting
// an adapter error about a listener that is itself an error listener, to
// avoid infinite recursion).
func invoke(fn func(), onPanic func(error)) {
	var catcher panics.Catcher
	catcher.Try(fn)
	if r := catcher.Recovered(); r != nil && onPanic != nil {
		onPanic(r.AsError())
	}
}
