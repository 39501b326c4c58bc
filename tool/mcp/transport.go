// Package mcp is a minimal Model Context Protocol client for tool servers
// spoken to over stdio. A Client performs the initialize handshake, lists the
// server's tools and exposes each of them as a tool.Tool. Closing the client
// terminates the server process.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// ProtocolVersion is the MCP revision announced during initialize.
const ProtocolVersion = "2024-11-05"

// Message is a JSON-RPC 2.0 envelope used for requests, responses and
// notifications alike.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsResponse reports whether the message answers a request.
func (m *Message) IsResponse() bool { return m.ID != nil && m.Method == "" }

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message) }

// Transport moves messages between client and server.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
	// Receive blocks until the next message arrives or the stream ends.
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// StdioTransport frames messages as newline-delimited JSON over a reader and
// writer pair, usually the stdout and stdin of a server process.
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	closer  io.Closer
	writeMu sync.Mutex
}

// NewStdioTransport creates a stdio transport. If w is also an io.Closer it
// is closed by Close, which signals EOF to the server.
func NewStdioTransport(r io.Reader, w io.Writer) *StdioTransport {
	t := &StdioTransport{reader: bufio.NewReaderSize(r, 64*1024), writer: w}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// Send writes one message followed by a newline.
func (t *StdioTransport) Send(_ context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	body = append(body, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive reads the next non-empty line and decodes it.
func (t *StdioTransport) Receive(_ context.Context) (*Message, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var msg Message
				if uerr := json.Unmarshal(trimmed, &msg); uerr != nil {
					return nil, fmt.Errorf("decode message: %w", uerr)
				}
				return &msg, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close closes the write side.
func (t *StdioTransport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
