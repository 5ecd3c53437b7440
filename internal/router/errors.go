package router

import "fmt"

// UnknownLanguageError reports a params.languageId naming a record that was
// never registered.
type UnknownLanguageError struct {
	LanguageID string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("router: unknown language %q", e.LanguageID)
}

// DocumentNotOpenError reports a params URI with no open document.
type DocumentNotOpenError struct {
	URI string
}

func (e *DocumentNotOpenError) Error() string {
	return fmt.Sprintf("router: document %q is not open", e.URI)
}

// NotResolvedError reports an ambiguous call: no languageId/URI hint, and
// zero or more than one adapter registered (spec.md testable property 7).
type NotResolvedError struct{}

func (e *NotResolvedError) Error() string {
	return "router: no languageId or recognized document uri to route by, and no sole adapter to fall back to"
}
