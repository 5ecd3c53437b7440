package router

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wharflab/polyclient/internal/adapter"
	"github.com/wharflab/polyclient/internal/document"
)

func noopContext(rec *adapter.Record) any { return rec }

func TestRouter_SoleAdapterFallback_NonObjectParams(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)

	rt := New(reg, document.NewStore())
	rec, err := rt.Resolve("not-an-object")
	require.NoError(t, err)
	require.Equal(t, "go", rec.LanguageID)
}

func TestRouter_ByLanguageID(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)
	_, err = reg.Register(adapter.Options{LanguageID: "ts"})
	require.NoError(t, err)

	rt := New(reg, document.NewStore())
	rec, err := rt.Resolve(map[string]any{"languageId": "ts"})
	require.NoError(t, err)
	require.Equal(t, "ts", rec.LanguageID)
}

func TestRouter_ByTextDocumentLanguageID(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)
	_, err = reg.Register(adapter.Options{LanguageID: "ts"})
	require.NoError(t, err)

	rt := New(reg, document.NewStore())
	rec, err := rt.Resolve(map[string]any{
		"textDocument": map[string]any{"languageId": "go", "uri": "file:///a.go"},
	})
	require.NoError(t, err)
	require.Equal(t, "go", rec.LanguageID)
}

func TestRouter_UnknownLanguageID(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)

	rt := New(reg, document.NewStore())
	_, err = rt.Resolve(map[string]any{"languageId": "rust"})
	var unknown *UnknownLanguageError
	require.ErrorAs(t, err, &unknown)
}

func TestRouter_ByDocumentURI(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)
	_, err = reg.Register(adapter.Options{LanguageID: "ts"})
	require.NoError(t, err)

	store := document.NewStore()
	_, err = store.Open("file:///a.go", "go", 1, "package a")
	require.NoError(t, err)

	rt := New(reg, store)
	rec, err := rt.Resolve(map[string]any{"uri": "file:///a.go"})
	require.NoError(t, err)
	require.Equal(t, "go", rec.LanguageID)
}

func TestRouter_ByLeftTextDocumentURI(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)
	_, err = reg.Register(adapter.Options{LanguageID: "ts"})
	require.NoError(t, err)

	store := document.NewStore()
	_, err = store.Open("file:///a.go", "go", 1, "package a")
	require.NoError(t, err)

	rt := New(reg, store)
	rec, err := rt.Resolve(map[string]any{
		"left": map[string]any{"textDocument": map[string]any{"uri": "file:///a.go"}},
	})
	require.NoError(t, err)
	require.Equal(t, "go", rec.LanguageID)
}

func TestRouter_DocumentNotOpen(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "go"})
	require.NoError(t, err)

	rt := New(reg, document.NewStore())
	_, err = rt.Resolve(map[string]any{"uri": "file:///missing.go"})
	var notOpen *DocumentNotOpenError
	require.ErrorAs(t, err, &notOpen)
}

// TestRouter_AmbiguousRejected covers testable property 7 and scenario S3:
// with >=2 adapters and no languageId/URI hint, resolution must fail
// without touching any adapter.
func TestRouter_AmbiguousRejected(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	_, err := reg.Register(adapter.Options{LanguageID: "one"})
	require.NoError(t, err)
	_, err = reg.Register(adapter.Options{LanguageID: "two"})
	require.NoError(t, err)

	rt := New(reg, document.NewStore())
	_, err = rt.Resolve(map[string]any{})
	var notResolved *NotResolvedError
	require.ErrorAs(t, err, &notResolved)
}

func TestRouter_NoAdaptersRegistered(t *testing.T) {
	t.Parallel()

	reg := adapter.NewRegistry(noopContext, nil)
	rt := New(reg, document.NewStore())
	_, err := rt.Resolve(map[string]any{})
	var notResolved *NotResolvedError
	require.ErrorAs(t, err, &notResolved)
}
