// Test helper language server used by internal/backend's skeleton tests.
//
// This binary is not part of the PolyClient hub. It speaks the LSP Base
// Protocol directly over stdio and supports a handful of deterministic
// "modes" via a flag:
//   - happy: initialize/initialized handshake, echoes every
//     textDocument/didOpen|didChange|didClose it receives back as a
//     test/received notification, answers shutdown, exits on `exit`.
//   - push-edit: like happy, but immediately after initialized, sends a
//     server-initiated workspace/applyEdit request and reports the result
//     as a test/applyEditResult notification.
//   - slow-init: like happy, but delays its initialize response.
//   - no-sync: initialize advertises textDocumentSync = 0 (none).
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func main() {
	mode := flag.String("mode", "happy", "fake server mode")
	flag.Parse()

	w := bufio.NewWriter(os.Stdout)
	nextID := 1000

	send := func(msg message) {
		msg.JSONRPC = "2.0"
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload))
		w.Write(payload)
		w.Flush()
	}

	sendNotification := func(method string, params any) {
		raw, _ := json.Marshal(params)
		send(message{Method: method, Params: raw})
	}

	sendRequest := func(method string, params any) int {
		id := nextID
		nextID++
		raw, _ := json.Marshal(params)
		idRaw, _ := json.Marshal(id)
		send(message{ID: idRaw, Method: method, Params: raw})
		return id
	}

	r := bufio.NewReader(os.Stdin)
	for {
		msg, err := readMessage(r)
		if err != nil {
			return
		}

		switch msg.Method {
		case "initialize":
			if *mode == "slow-init" {
				time.Sleep(50 * time.Millisecond)
			}
			sync := any(map[string]any{"openClose": true, "change": 2})
			if *mode == "no-sync" {
				sync = 0
			}
			result, _ := json.Marshal(map[string]any{
				"capabilities": map[string]any{"textDocumentSync": sync},
			})
			send(message{ID: msg.ID, Result: result})

		case "initialized":
			if *mode == "push-edit" {
				sendRequest("workspace/applyEdit", map[string]any{
					"edit": map[string]any{
						"documentChanges": []any{
							map[string]any{
								"textDocument": map[string]any{"uri": "file:///a.ts", "version": 1},
								"edits": []any{
									map[string]any{
										"range":   map[string]any{"start": map[string]any{"line": 0, "character": 11}, "end": map[string]any{"line": 0, "character": 12}},
										"newText": "2",
									},
								},
							},
						},
					},
				})
			}

		case "textDocument/didOpen", "textDocument/didChange", "textDocument/didClose":
			sendNotification("test/received", map[string]any{"method": msg.Method, "params": json.RawMessage(msg.Params)})

		case "shutdown":
			send(message{ID: msg.ID, Result: json.RawMessage("null")})

		case "exit":
			w.Flush()
			os.Exit(0)

		case "":
			// a response to our own server-initiated request
			sendNotification("test/applyEditResult", json.RawMessage(msg.Result))
		}
	}
}

func readMessage(r *bufio.Reader) (message, error) {
	var contentLength int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return message{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if found && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(value))
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return message{}, err
	}

	var msg message
	if err := json.Unmarshal(bytes.TrimSpace(body), &msg); err != nil {
		return message{}, err
	}
	return msg, nil
}
