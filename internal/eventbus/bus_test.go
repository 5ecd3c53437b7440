package eventbus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_DiagnosticsFanOut(t *testing.T) {
	t.Parallel()

	b := New()
	var got DiagnosticsEvent
	b.OnDiagnostics("file:///a.go", func(e DiagnosticsEvent) { got = e })

	b.PublishDiagnostics("file:///a.go", "go", []any{map[string]any{"message": "bad"}})

	require.Equal(t, "file:///a.go", got.URI)
	require.Equal(t, "go", got.LanguageID)
	require.Len(t, got.Diagnostics, 1)
}

func TestBus_DiagnosticsDeepCopy(t *testing.T) {
	t.Parallel()

	b := New()
	original := []any{map[string]any{"message": "bad"}}

	var received []any
	b.OnDiagnostics("file:///a.go", func(e DiagnosticsEvent) { received = e.Diagnostics })
	b.PublishDiagnostics("file:///a.go", "go", original)

	received[0].(map[string]any)["message"] = "mutated"
	require.Equal(t, "bad", original[0].(map[string]any)["message"], "publisher's own slice must be unaffected by listener mutation")
}

// TestBus_SubscriptionIsolation covers testable property 3: cancel removes
// only the cancelled listener.
func TestBus_SubscriptionIsolation(t *testing.T) {
	t.Parallel()

	b := New()
	var aFired, bFired bool

	subA := b.OnWorkspaceEvent("configChanged", func(WorkspaceEvent) { aFired = true })
	b.OnWorkspaceEvent("configChanged", func(WorkspaceEvent) { bFired = true })

	subA.Cancel()
	b.EmitWorkspaceEvent("configChanged", "go", nil)

	require.False(t, aFired)
	require.True(t, bFired)
}

func TestBus_SubscriptionCancel_Idempotent(t *testing.T) {
	t.Parallel()

	b := New()
	var fireCount int
	sub := b.OnNotification("window/logMessage", func(NotificationEvent) { fireCount++ })

	sub.Cancel()
	sub.Cancel()
	sub.Cancel()

	b.NotifyClient("window/logMessage", "go", nil)
	require.Equal(t, 0, fireCount)
}

// TestBus_Dispose_Idempotent covers testable property 2 at the bus level:
// disposing repeatedly has the same effect as once, and no listener fires
// after disposal.
func TestBus_Dispose_Idempotent(t *testing.T) {
	t.Parallel()

	b := New()
	var fired bool
	b.OnDiagnostics("file:///a.go", func(DiagnosticsEvent) { fired = true })

	b.Dispose()
	b.Dispose()
	b.Dispose()

	b.PublishDiagnostics("file:///a.go", "go", nil)
	require.False(t, fired)
}

// TestBus_AnswerRequest_FirstAnswerWins covers spec.md §4.8: an unknown
// server-request method is offered to request listeners in registration
// order, and the first one to answer (ok == true) supplies the result.
func TestBus_AnswerRequest_FirstAnswerWins(t *testing.T) {
	t.Parallel()

	b := New()
	b.OnRequest("custom/ping", func(RequestEvent) (any, bool) { return nil, false })
	b.OnRequest("custom/ping", func(RequestEvent) (any, bool) { return "first", true })
	b.OnRequest("custom/ping", func(RequestEvent) (any, bool) { return "second", true })

	result, ok := b.AnswerRequest("custom/ping", "go", map[string]any{"n": 1})
	require.True(t, ok)
	require.Equal(t, "first", result)
}

// TestBus_AnswerRequest_NoListenerReturnsFalse covers the null fallback
// when nothing answers.
func TestBus_AnswerRequest_NoListenerReturnsFalse(t *testing.T) {
	t.Parallel()

	b := New()
	result, ok := b.AnswerRequest("custom/ping", "go", nil)
	require.False(t, ok)
	require.Nil(t, result)
}

// TestBus_AnswerRequest_CancelRemovesListener covers Subscription.Cancel
// for request-answering listeners.
func TestBus_AnswerRequest_CancelRemovesListener(t *testing.T) {
	t.Parallel()

	b := New()
	sub := b.OnRequest("custom/ping", func(RequestEvent) (any, bool) { return "answer", true })
	sub.Cancel()

	_, ok := b.AnswerRequest("custom/ping", "go", nil)
	require.False(t, ok)
}

// TestBus_AnswerRequest_PanicSkipsToNextListener mirrors
// TestBus_ListenerPanicDoesNotInterruptFanOut for the request-answering
// path: a panicking listener counts as "no answer", not a crash.
func TestBus_AnswerRequest_PanicSkipsToNextListener(t *testing.T) {
	t.Parallel()

	b := New()
	b.OnRequest("custom/ping", func(RequestEvent) (any, bool) { panic("boom") })
	b.OnRequest("custom/ping", func(RequestEvent) (any, bool) { return "fallback", true })

	result, ok := b.AnswerRequest("custom/ping", "go", nil)
	require.True(t, ok)
	require.Equal(t, "fallback", result)
}

func TestBus_ListenerPanicDoesNotInterruptFanOut(t *testing.T) {
	t.Parallel()

	b := New()
	var secondFired bool
	var reportedErr error
	var mu sync.Mutex

	b.OnError(func(e AdapterErrorEvent) {
		mu.Lock()
		reportedErr = e.Err
		mu.Unlock()
	})

	b.OnWorkspaceEvent("k", func(WorkspaceEvent) { panic("boom") })
	b.OnWorkspaceEvent("k", func(WorkspaceEvent) { secondFired = true })

	b.EmitWorkspaceEvent("k", "go", nil)

	require.True(t, secondFired, "a panicking listener must not prevent its siblings from firing")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reportedErr != nil
	}, time.Second, 5*time.Millisecond)
}

func TestBus_ReportAdapterError(t *testing.T) {
	t.Parallel()

	b := New()
	var got AdapterErrorEvent
	b.OnError(func(e AdapterErrorEvent) { got = e })

	b.ReportAdapterError("go", "initialize", errors.New("boom"))

	require.Equal(t, "go", got.LanguageID)
	require.Equal(t, "initialize", got.Operation)
	require.EqualError(t, got.Err, "boom")
}
