package adapter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noopContext(rec *Record) any { return rec }

func TestRegistry_NilInitialize_ReadyImmediately(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(noopContext, nil)
	rec, err := reg.Register(Options{LanguageID: "go"})
	require.NoError(t, err)
	require.Equal(t, StateReady, rec.State())
}

func TestRegistry_RejectsEmptyLanguageID(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(noopContext, nil)
	_, err := reg.Register(Options{})
	var invalid *InvalidAdapterError
	require.ErrorAs(t, err, &invalid)
}

func TestRegistry_RejectsDuplicateLanguageID(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(noopContext, nil)
	_, err := reg.Register(Options{LanguageID: "go"})
	require.NoError(t, err)

	_, err = reg.Register(Options{LanguageID: "go"})
	var exists *LanguageExistsError
	require.ErrorAs(t, err, &exists)
}

// TestRegistry_QueueOrdering covers testable property 6 and scenario S2:
// open -> update1 -> update2 issued before an async initialize resolves
// must be observed by the adapter in that exact order, exactly once each.
func TestRegistry_QueueOrdering(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	var mu sync.Mutex
	var observed []Operation

	reg := NewRegistry(noopContext, nil)
	rec, err := reg.Register(Options{
		LanguageID: "go",
		Handlers: map[Operation]HandlerFunc{
			OpOpenDocument: func(params any, reqCtx any) (any, error) {
				mu.Lock()
				observed = append(observed, OpOpenDocument)
				mu.Unlock()
				return nil, nil
			},
			OpUpdateDocument: func(params any, reqCtx any) (any, error) {
				mu.Lock()
				observed = append(observed, OpUpdateDocument)
				mu.Unlock()
				return nil, nil
			},
		},
		Initialize: func(ctx any) error {
			<-gate
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, StateInitializing, rec.State())

	require.NoError(t, reg.DispatchDocSync("go", OpOpenDocument, DocSyncPayload{URI: "file:///a.ts", Version: 1}))
	require.NoError(t, reg.DispatchDocSync("go", OpUpdateDocument, DocSyncPayload{URI: "file:///a.ts", Version: 2}))
	require.NoError(t, reg.DispatchDocSync("go", OpUpdateDocument, DocSyncPayload{URI: "file:///a.ts", Version: 3}))

	mu.Lock()
	require.Empty(t, observed, "nothing should be dispatched before ready")
	mu.Unlock()

	close(gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Operation{OpOpenDocument, OpUpdateDocument, OpUpdateDocument}, observed)
}

func TestRegistry_AsyncInitializeFailure_FlushesQueueAsErrors(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var reported []Operation
	wantErr := errors.New("boom")

	reg := NewRegistry(noopContext, func(languageID string, operation Operation, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, operation)
	})

	gate := make(chan struct{})
	_, err := reg.Register(Options{
		LanguageID: "go",
		Initialize: func(ctx any) error {
			<-gate
			return wantErr
		},
	})
	require.NoError(t, err)

	require.NoError(t, reg.DispatchDocSync("go", OpOpenDocument, DocSyncPayload{URI: "file:///a.ts"}))
	close(gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = reg.Get("go")
	var unknown *UnknownLanguageError
	require.ErrorAs(t, err, &unknown, "failed record must be removed from the registry")
}

func TestRegistry_RequireReady_Gate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(noopContext, nil)
	_, err := reg.Register(Options{LanguageID: "go"})
	require.NoError(t, err)

	rec, err := reg.RequireReady("go")
	require.NoError(t, err)
	require.Equal(t, "go", rec.LanguageID)

	_, err = reg.RequireReady("missing")
	var unknown *UnknownLanguageError
	require.ErrorAs(t, err, &unknown)
}

func TestRegistry_RequireReady_NotReady(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	defer close(gate)

	reg := NewRegistry(noopContext, nil)
	_, err := reg.Register(Options{
		LanguageID: "go",
		Initialize: func(ctx any) error { <-gate; return nil },
	})
	require.NoError(t, err)

	_, err = reg.RequireReady("go")
	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
}

func TestRegistry_RequireReady_Failed(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(noopContext, nil)
	done := make(chan struct{})
	_, err := reg.Register(Options{
		LanguageID: "go",
		Initialize: func(ctx any) error { return errors.New("nope") },
		Dispose:    func(ctx any) error { close(done); return nil },
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	_, err = reg.RequireReady("go")
	var unknown *UnknownLanguageError
	require.ErrorAs(t, err, &unknown, "a failed+removed record reads back as unknown")
}

func TestRegistry_Unregister_RunsDisposablesAndDispose(t *testing.T) {
	t.Parallel()

	var disposed, cleaned bool
	reg := NewRegistry(noopContext, nil)
	rec, err := reg.Register(Options{
		LanguageID: "go",
		Dispose:    func(ctx any) error { disposed = true; return nil },
	})
	require.NoError(t, err)
	rec.RegisterDisposable(func() { cleaned = true })

	require.NoError(t, reg.Unregister("go"))
	require.True(t, disposed)
	require.True(t, cleaned)
	require.Equal(t, StateDisposed, rec.State())

	_, err = reg.Get("go")
	var unknown *UnknownLanguageError
	require.ErrorAs(t, err, &unknown)
}

func TestRegistry_DisposeAll(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(noopContext, nil)
	_, err := reg.Register(Options{LanguageID: "one"})
	require.NoError(t, err)
	_, err = reg.Register(Options{LanguageID: "two"})
	require.NoError(t, err)

	reg.DisposeAll()
	require.Empty(t, reg.All())
}
