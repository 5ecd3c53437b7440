package adapter

import "fmt"

// InvalidAdapterError reports a registration whose shape fails validation
// (empty languageId).
type InvalidAdapterError struct {
	Reason string
}

func (e *InvalidAdapterError) Error() string { return fmt.Sprintf("adapter: invalid adapter: %s", e.Reason) }

// LanguageExistsError reports a registration for an already-registered
// languageId.
type LanguageExistsError struct {
	LanguageID string
}

func (e *LanguageExistsError) Error() string {
	return fmt.Sprintf("adapter: language %q is already registered", e.LanguageID)
}

// UnknownLanguageError reports a lookup for a languageId with no record, or
// one that has been disposed.
type UnknownLanguageError struct {
	LanguageID string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("adapter: unknown language %q", e.LanguageID)
}

// NotReadyError reports a routed call against a record that is still
// registering/initializing.
type NotReadyError struct {
	LanguageID string
	State      State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("adapter: language %q is not ready (state=%s)", e.LanguageID, e.State)
}

// FailedError reports a routed call against a record whose initialization
// failed.
type FailedError struct {
	LanguageID string
	Cause      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("adapter: language %q failed to initialize: %v", e.LanguageID, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }

// UnsupportedError reports a routed call for an operation the adapter did
// not register a handler for.
type UnsupportedError struct {
	LanguageID string
	Operation  Operation
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("adapter: language %q does not support %q", e.LanguageID, e.Operation)
}
