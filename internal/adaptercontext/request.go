package adaptercontext

import "github.com/wharflab/polyclient/internal/document"

// RequestContext is handed to a handler per routed operation (spec.md
// §4.8), lighter than the Adapter Context: no disposables, no direct
// workspace-edit access, just read access to documents and the client's
// static configuration snapshot.
type RequestContext struct {
	LanguageID       string
	ClientOptions    map[string]any
	WorkspaceFolders []string

	docs *document.Store
}

// NewRequestContext builds a RequestContext for one routed call.
func NewRequestContext(languageID string, clientOptions map[string]any, workspaceFolders []string, docs *document.Store) *RequestContext {
	return &RequestContext{
		LanguageID:       languageID,
		ClientOptions:    clientOptions,
		WorkspaceFolders: workspaceFolders,
		docs:             docs,
	}
}

// GetDocument returns a defensive copy of the open document at uri.
func (r *RequestContext) GetDocument(uri string) (document.Document, error) {
	return r.docs.Get(uri)
}
