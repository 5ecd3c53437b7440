package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ID is a JSON-RPC request id: either the client's own monotonically
// increasing integer, or a string/number id handed to us by the remote end
// for a server-initiated request. Ids generated by this package are
// non-negative integers starting at 0 (spec.md §6).
type ID struct {
	num   int64
	str   string
	isStr bool
}

func numberID(n int64) ID { return ID{num: n} }

func (id ID) String() string {
	if id.isStr {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("jsonrpc: invalid id %s", data)
	}
	*id = ID{str: s, isStr: true}
	return nil
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type wireError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Handler supplies the callbacks a Connection dispatches decoded messages
// to (spec.md §4.2's "event surface": notification, request, error, close).
// Any nil callback silently drops the corresponding event, except a nil
// OnRequest: each server-initiated request is then answered with a
// method-not-found error response.
type Handler struct {
	// OnNotification is called for every method-bearing, id-less message.
	OnNotification func(method string, params json.RawMessage)

	// OnRequest answers a server-initiated request. Its return value is
	// marshaled and written back as the response automatically; returning
	// a *RemoteError sends a JSON-RPC error response instead of a result.
	OnRequest func(ctx context.Context, method string, params json.RawMessage) (result any, rpcErr *RemoteError)

	// OnError is called for transport/decode-level failures that don't
	// belong to any single pending request.
	OnError func(err error)

	// OnClose is called exactly once, when the connection transitions to
	// disposed, with the error that triggered disposal (nil for a clean
	// Close(nil)).
	OnClose func(err error)
}

type pendingRequest struct {
	method string
	result chan requestOutcome
}

type requestOutcome struct {
	result json.RawMessage
	err    error
}

// Connection drives one duplex byte stream as a JSON-RPC 2.0 connection
// framed with Content-Length headers. Construct with NewConnection, which
// starts an internal read loop; all state mutation happens behind a single
// mutex, matching spec.md §5's single-threaded-per-client model.
type Connection struct {
	w       io.Writer
	writeMu sync.Mutex

	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[string]*pendingRequest
	closed  bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewConnection wraps r/w as a JSON-RPC connection and starts reading from
// r in a background goroutine. Call Close to stop it; Close is always safe
// to call even if the read loop already exited on its own (e.g. the peer
// closed its end).
func NewConnection(r io.Reader, w io.Writer, handler Handler, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		w:       w,
		handler: handler,
		logger:  logger,
		pending: make(map[string]*pendingRequest),
		closeCh: make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *Connection) readLoop(r io.Reader) {
	dec := NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, raw := range dec.Feed(buf[:n]) {
				c.dispatch(raw)
			}
		}
		if err != nil {
			if err == io.EOF {
				c.Close(nil)
			} else {
				c.Close(&ProtocolError{Err: err})
			}
			return
		}
	}
}

func (c *Connection) dispatch(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reportError(&ProtocolError{Err: fmt.Errorf("malformed message: %w", err)})
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		c.resolvePending(*msg.ID, msg.Result, msg.Error)
	case msg.ID != nil && msg.Method != "":
		c.handleIncomingRequest(*msg.ID, msg.Method, msg.Params)
	case msg.ID == nil && msg.Method != "":
		if c.handler.OnNotification != nil {
			c.handler.OnNotification(msg.Method, msg.Params)
		}
	default:
		c.logger.Debug("jsonrpc: dropping message with neither id nor method")
	}
}

func (c *Connection) resolvePending(id ID, result json.RawMessage, rawErr json.RawMessage) {
	c.mu.Lock()
	pr, ok := c.pending[id.String()]
	if ok {
		delete(c.pending, id.String())
	}
	c.mu.Unlock()

	if !ok {
		// Late arrival after a timeout already removed the entry, or a
		// response to an id we never sent. Both are silently discarded.
		c.logger.Debug("jsonrpc: discarding response for unknown id", slog.String("id", id.String()))
		return
	}

	outcome := requestOutcome{result: result}
	if len(rawErr) > 0 {
		outcome.err = normalizeWireError(rawErr)
	}
	pr.result <- outcome
}

// normalizeWireError decodes a response's "error" field into a RemoteError.
// A remote that sends a well-formed {code, message, data} object gets that
// object back verbatim; a remote that sends anything else (a bare string, a
// number, even a JSON array) still must not hang the caller, so it becomes
// the generic RemoteError spec.md §4.2 documents: Code 0, Message "request
// failed", Data holding the value exactly as the remote sent it.
func normalizeWireError(rawErr json.RawMessage) error {
	var we wireError
	if err := json.Unmarshal(rawErr, &we); err == nil {
		return &RemoteError{Code: we.Code, Message: we.Message, Data: we.Data}
	}
	return &RemoteError{Code: 0, Message: "request failed", Data: rawErr}
}

func (c *Connection) handleIncomingRequest(id ID, method string, params json.RawMessage) {
	if c.handler.OnRequest == nil {
		c.writeError(id, NewRemoteError(-32601, "method not found: "+method, nil))
		return
	}
	go func() {
		result, rpcErr := c.handler.OnRequest(context.Background(), method, params)
		if rpcErr != nil {
			c.writeError(id, rpcErr)
			return
		}
		c.writeResult(id, result)
	}()
}

func (c *Connection) reportError(err error) {
	if c.handler.OnError != nil {
		c.handler.OnError(err)
	}
}

// SendNotification frames and writes a notification (no id, no response
// expected).
func (c *Connection) SendNotification(method string, params any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &ConnectionClosedError{}
	}

	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.writeMessage(wireMessage{JSONRPC: "2.0", Method: method, Params: raw})
}

// SendRequest allocates a fresh id, writes the request, and blocks until a
// matching response arrives, the timeout elapses, ctx is canceled, or the
// connection closes. A zero timeout means "wait indefinitely" (bounded only
// by ctx/Close).
func (c *Connection) SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &ConnectionClosedError{}
	}
	id := numberID(c.nextID)
	c.nextID++
	pr := &pendingRequest{method: method, result: make(chan requestOutcome, 1)}
	key := id.String()
	c.pending[key] = pr
	c.mu.Unlock()

	raw, err := marshalParams(params)
	if err != nil {
		c.removePending(key)
		return nil, err
	}

	if err := c.writeMessage(wireMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}); err != nil {
		c.removePending(key)
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case outcome := <-pr.result:
		return outcome.result, outcome.err
	case <-timeoutCh:
		c.removePending(key)
		return nil, &TimeoutError{Method: method}
	case <-ctx.Done():
		c.removePending(key)
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, &ConnectionClosedError{}
	}
}

func (c *Connection) removePending(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

// writeResult answers a server-initiated request with a successful result.
func (c *Connection) writeResult(id ID, result any) {
	raw, err := marshalParams(result)
	if err != nil {
		c.writeError(id, NewRemoteError(-32603, "internal error: "+err.Error(), nil))
		return
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	if err := c.writeMessage(wireMessage{JSONRPC: "2.0", ID: &id, Result: raw}); err != nil {
		c.reportError(err)
	}
}

// writeError answers a server-initiated request with a JSON-RPC error.
func (c *Connection) writeError(id ID, rpcErr *RemoteError) {
	raw, err := json.Marshal(wireError{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data})
	if err != nil {
		c.reportError(fmt.Errorf("jsonrpc: marshal error object: %w", err))
		return
	}
	msg := wireMessage{JSONRPC: "2.0", ID: &id, Error: raw}
	if err := c.writeMessage(msg); err != nil {
		c.reportError(err)
	}
}

func (c *Connection) writeMessage(msg wireMessage) error {
	msg.JSONRPC = "2.0"
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal message: %w", err)
	}
	return c.write(payload)
}

func (c *Connection) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(Encode(payload)); err != nil {
		return &ConnectionClosedError{Cause: err}
	}
	return nil
}

// Close idempotently disposes the connection: every pending request fails
// with ConnectionClosedError, the close channel fires, and OnClose is
// invoked exactly once with cause (nil for a clean close).
func (c *Connection) Close(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = make(map[string]*pendingRequest)
		c.mu.Unlock()

		for _, pr := range pending {
			pr.result <- requestOutcome{err: &ConnectionClosedError{Cause: cause}}
		}

		close(c.closeCh)

		if c.handler.OnClose != nil {
			c.handler.OnClose(cause)
		}
	})
}

// Closed reports whether Close has completed.
func (c *Connection) Closed() <-chan struct{} { return c.closeCh }

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal params: %w", err)
	}
	return raw, nil
}
