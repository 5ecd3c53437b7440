// Package router resolves an incoming host call to exactly one registered
// adapter (spec.md C5), the single explicit dispatch table the teacher's
// internal/lspserver/server.go uses for its own method-name switch,
// generalized here from a fixed method list to languageId/URI inference.
package router

import (
	"github.com/wharflab/polyclient/internal/adapter"
	"github.com/wharflab/polyclient/internal/document"
)

// Registry is the subset of *adapter.Registry the router depends on.
type Registry interface {
	Get(languageID string) (*adapter.Record, error)
	All() []*adapter.Record
}

// Documents is the subset of *document.Store the router depends on.
type Documents interface {
	Get(uri string) (document.Document, error)
}

// Router implements spec.md §4.5's five-step resolution algorithm.
type Router struct {
	registry Registry
	docs     Documents
}

// New returns a Router over the given registry and document store.
func New(registry Registry, docs Documents) *Router {
	return &Router{registry: registry, docs: docs}
}

// Resolve picks the target record for params, without enforcing the
// readiness gate — callers apply that separately (spec.md: "After
// resolution, enforce the readiness gate").
func (rt *Router) Resolve(params any) (*adapter.Record, error) {
	obj, isObject := asMap(params)

	if !isObject {
		if rec, ok := rt.soleAdapter(); ok {
			return rec, nil
		}
		return nil, &NotResolvedError{}
	}

	if languageID, ok := extractLanguageID(obj); ok {
		rec, err := rt.registry.Get(languageID)
		if err != nil {
			return nil, &UnknownLanguageError{LanguageID: languageID}
		}
		return rec, nil
	}

	if uri, ok := extractURI(obj); ok {
		normalized, err := document.NormalizeURI(uri)
		if err != nil {
			return nil, &DocumentNotOpenError{URI: uri}
		}
		doc, err := rt.docs.Get(normalized)
		if err != nil {
			return nil, &DocumentNotOpenError{URI: normalized}
		}
		rec, err := rt.registry.Get(doc.LanguageID)
		if err != nil {
			return nil, &UnknownLanguageError{LanguageID: doc.LanguageID}
		}
		return rec, nil
	}

	if rec, ok := rt.soleAdapter(); ok {
		return rec, nil
	}
	return nil, &NotResolvedError{}
}

func (rt *Router) soleAdapter() (*adapter.Record, bool) {
	all := rt.registry.All()
	if len(all) != 1 {
		return nil, false
	}
	return all[0], true
}

// asMap reports whether v is a structured object (a map keyed by string, the
// shape host params take once decoded from JSON) and returns it as such.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func nestedField(obj map[string]any, parent, key string) (string, bool) {
	raw, ok := obj[parent]
	if !ok {
		return "", false
	}
	nested, ok := asMap(raw)
	if !ok {
		return "", false
	}
	return stringField(nested, key)
}

func extractLanguageID(obj map[string]any) (string, bool) {
	if v, ok := stringField(obj, "languageId"); ok {
		return v, true
	}
	if v, ok := stringField(obj, "language"); ok {
		return v, true
	}
	if v, ok := nestedField(obj, "textDocument", "languageId"); ok {
		return v, true
	}
	if v, ok := nestedField(obj, "document", "languageId"); ok {
		return v, true
	}
	return "", false
}

func extractURI(obj map[string]any) (string, bool) {
	if v, ok := stringField(obj, "uri"); ok {
		return v, true
	}
	if v, ok := nestedField(obj, "textDocument", "uri"); ok {
		return v, true
	}
	if v, ok := nestedField(obj, "document", "uri"); ok {
		return v, true
	}
	if left, ok := obj["left"]; ok {
		if leftMap, ok := asMap(left); ok {
			if v, ok := nestedField(leftMap, "textDocument", "uri"); ok {
				return v, true
			}
		}
	}
	return "", false
}
