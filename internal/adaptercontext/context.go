// Package adaptercontext implements the capability surface handed to an
// adapter: the Adapter Context at initialization time, and the lighter
// per-operation Request Context (spec.md C8).
package adaptercontext

import (
	"github.com/wharflab/polyclient/internal/adapter"
	"github.com/wharflab/polyclient/internal/document"
	"github.com/wharflab/polyclient/internal/eventbus"
	"github.com/wharflab/polyclient/internal/workspaceedit"
)

// ConfigurationParams carries the workspace/configuration request's item
// count; the hub answers with one empty object per item (spec.md §4.8).
type ConfigurationParams struct {
	Items []any
}

// ShowMessageRequestParams carries the window/showMessageRequest request's
// offered actions.
type ShowMessageRequestParams struct {
	Actions []any
}

// Context is the Adapter Context for one record: a fresh Context is built
// each time the record's Initialize/Dispose/document-sync handlers run, and
// handed to them via the `any` parameter those signatures take, to avoid a
// package cycle with internal/adapter.
type Context struct {
	record   *adapter.Record
	docs     *document.Store
	registry *adapter.Registry
	bus      *eventbus.Bus
	edits    *workspaceedit.Engine

	workspaceFolders []string
}

// New builds the Adapter Context for rec.
func New(rec *adapter.Record, docs *document.Store, registry *adapter.Registry, bus *eventbus.Bus, edits *workspaceedit.Engine, workspaceFolders []string) *Context {
	return &Context{
		record:           rec,
		docs:             docs,
		registry:         registry,
		bus:              bus,
		edits:            edits,
		workspaceFolders: workspaceFolders,
	}
}

// PublishDiagnostics routes diagnostics through the Event Bus, tagged with
// this adapter's languageId.
func (c *Context) PublishDiagnostics(uri string, diagnostics []any) {
	c.bus.PublishDiagnostics(uri, c.record.LanguageID, diagnostics)
}

// EmitWorkspaceEvent routes a workspace event through the Event Bus.
func (c *Context) EmitWorkspaceEvent(kind string, payload any) {
	c.bus.EmitWorkspaceEvent(kind, c.record.LanguageID, payload)
}

// GetDocument returns a defensive copy of the open document at uri, but
// only if it belongs to this adapter's language (spec.md §4.8: "the live
// store is never exposed").
func (c *Context) GetDocument(uri string) (document.Document, error) {
	doc, err := c.docs.Get(uri)
	if err != nil {
		return document.Document{}, err
	}
	if doc.LanguageID != c.record.LanguageID {
		return document.Document{}, &document.NotOpenError{URI: uri}
	}
	return doc, nil
}

// ListDocuments returns defensive copies of every open document belonging
// to this adapter's language.
func (c *Context) ListDocuments() []document.Document {
	all := c.docs.All()
	out := make([]document.Document, 0, len(all))
	for _, doc := range all {
		if doc.LanguageID == c.record.LanguageID {
			out = append(out, doc)
		}
	}
	return out
}

// NotifyClient fans a server-originated notification (anything other than
// diagnostics) out to host subscribers.
func (c *Context) NotifyClient(method string, payload any) {
	c.bus.NotifyClient(method, c.record.LanguageID, payload)
}

// ApplyWorkspaceEdit gives an adapter direct access to C6.
func (c *Context) ApplyWorkspaceEdit(edit workspaceedit.Edit) *workspaceedit.Result {
	return c.edits.Apply(edit)
}

// RegisterDisposable attaches a cleanup to this adapter's record, run once
// during Unregister.
func (c *Context) RegisterDisposable(fn func()) {
	c.record.RegisterDisposable(fn)
}

// HandleServerRequest answers a server-initiated request with one of the
// built-in handlers spec.md §4.8 names. An unrecognized method is offered
// to the Event Bus's request-answering listeners (registered through the
// host-facing OnServerRequest, spec.md §4.8's "offered to notification
// listeners"); the first one to answer wins, otherwise the result is null.
// Adapters that need a different answer for a given method (C9's
// workspace/applyEdit handling, for instance) intercept it before reaching
// here.
func (c *Context) HandleServerRequest(method string, params any) (any, error) {
	switch method {
	case "workspace/applyEdit":
		edit, ok := params.(workspaceedit.Edit)
		if !ok {
			return map[string]any{"applied": false, "failureReason": "malformed edit"}, nil
		}
		result := c.edits.Apply(edit)
		resp := map[string]any{"applied": result.Applied}
		if result.FailureReason != "" {
			resp["failureReason"] = result.FailureReason
		}
		if result.FailedChange != nil {
			resp["failedChange"] = *result.FailedChange
		}
		return resp, nil

	case "workspace/configuration":
		cfg, _ := params.(ConfigurationParams)
		if m, ok := params.(map[string]any); ok {
			cfg.Items, _ = m["items"].([]any)
		}
		out := make([]any, len(cfg.Items))
		for i := range out {
			out[i] = map[string]any{}
		}
		return out, nil

	case "workspace/workspaceFolders":
		return c.workspaceFolders, nil

	case "window/showMessageRequest":
		smr, _ := params.(ShowMessageRequestParams)
		if m, ok := params.(map[string]any); ok {
			smr.Actions, _ = m["actions"].([]any)
		}
		if len(smr.Actions) > 0 {
			return smr.Actions[0], nil
		}
		return nil, nil

	case "client/registerCapability", "client/unregisterCapability", "workspace/didChangeWorkspaceFolders":
		return nil, nil

	default:
		if result, ok := c.bus.AnswerRequest(method, c.record.LanguageID, params); ok {
			return result, nil
		}
		return nil, nil
	}
}
