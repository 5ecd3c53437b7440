package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// TimeoutError is returned when a request's caller-supplied timeout
// elapses before a response arrives. The matching response, if it arrives
// later, is silently discarded (spec.md §4.2).
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("jsonrpc: request %q timed out", e.Method)
}

// ConnectionClosedError is returned by any call made against a disposed
// connection, and by every pending request failed at close time.
type ConnectionClosedError struct {
	Cause error
}

func (e *ConnectionClosedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jsonrpc: connection closed: %v", e.Cause)
	}
	return "jsonrpc: connection closed"
}

func (e *ConnectionClosedError) Unwrap() error { return e.Cause }

// ProtocolError wraps a transport/decode-level failure: a message that
// didn't parse as JSON, or a frame the codec could not decode.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("jsonrpc: protocol error: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// RemoteError is the normalized form of a JSON-RPC error object
// ({code, message, data}) returned by the remote end of the connection in
// response to a request. A non-object error value becomes a RemoteError
// with Code 0 and Message "request failed", Data holding the raw value, per
// spec.md §4.2.
type RemoteError struct {
	Code    int64
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("jsonrpc: remote error %d: %s", e.Code, e.Message)
}

// NewRemoteError constructs a RemoteError for a handler to return from
// Handler.OnRequest.
func NewRemoteError(code int64, message string, data any) *RemoteError {
	re := &RemoteError{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			re.Data = raw
		}
	}
	return re
}
