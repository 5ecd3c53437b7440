package polyclient

import (
	"errors"
	"fmt"
)

// Kind tags a PolyClient error with the category from spec.md §7, so
// callers can branch on error identity with errors.As/errors.Is instead of
// parsing messages.
type Kind string

const (
	KindInvalidOptions      Kind = "invalid_options"
	KindInvalidAdapter      Kind = "invalid_adapter"
	KindLanguageExists      Kind = "language_exists"
	KindInvalidClient       Kind = "invalid_client"
	KindInvalidURI          Kind = "invalid_uri"
	KindInvalidPosition     Kind = "invalid_position"
	KindInvalidChange       Kind = "invalid_change"
	KindInvalidEdit         Kind = "invalid_edit"
	KindInvalidChanges      Kind = "invalid_changes"
	KindInvalidVersion      Kind = "invalid_version"
	KindUnknownLanguage     Kind = "unknown_language"
	KindDocumentNotOpen     Kind = "document_not_open"
	KindLanguageNotResolved Kind = "language_not_resolved"
	KindLanguageNotReady    Kind = "language_not_ready"
	KindLanguageFailed      Kind = "language_failed"
	KindFeatureUnsupported  Kind = "feature_unsupported"
	KindClientDisposed      Kind = "client_disposed"
	KindTimeout             Kind = "timeout"
	KindConnectionClosed    Kind = "connection_closed"
	KindProtocolError       Kind = "protocol_error"
)

// Error is the concrete error type returned by every PolyClient operation
// that fails validation, routing, or the adapter-state gate. It always
// carries a Kind so callers can use errors.As without depending on message
// text, the same shape internal/registry's AuthError/NotFoundError use.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("polyclient: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("polyclient: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: K}) match any *Error of the same Kind,
// independent of Message/Err, mirroring how callers actually want to test
// these errors (spec.md only ever documents the Kind, never the message).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrClientDisposed is returned by every operation invoked after Dispose has
// completed. It carries no per-call context, so it is a package-level
// sentinel rather than a constructed *Error — callers can use
// errors.Is(err, polyclient.ErrClientDisposed) directly.
var ErrClientDisposed = &Error{Kind: KindClientDisposed, Message: "client has been disposed"}

// ErrLanguageNotResolved is returned when routing has no way to pick a
// target adapter: no languageId/URI hint, and more than one adapter (or
// zero) is registered.
var ErrLanguageNotResolved = &Error{Kind: KindLanguageNotResolved, Message: "no languageId or recognized document URI to route by"}
