package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/reviewswarm/logging"
)

// ErrClosed is returned for requests issued after the client shut down.
var ErrClosed = errors.New("mcp client closed")

// Options configure a Client.
type Options struct {
	// Name identifies the server in logs.
	Name string
	// ToolPrefix is prepended to every remote tool name.
	ToolPrefix    string
	ClientName    string
	ClientVersion string
	// ShutdownGrace bounds how long Close waits for the server to exit.
	ShutdownGrace time.Duration
	Logger        logging.Logger
}

// ServerInfo is reported by the server during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolInfo describes one remote tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContentBlock is one element of a tool call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the payload of a tools/call response.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text joins all text blocks.
func (r *CallToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" || c.Type == "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Client speaks MCP over a Transport. Requests may be issued concurrently;
// responses are matched by id.
type Client struct {
	transport Transport
	opts      Options
	cmd       *exec.Cmd
	// stderrDone is closed once the server's stderr reached EOF. Wait must
	// not run before that.
	stderrDone chan struct{}

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *Message

	done    chan struct{}
	readErr error

	serverInfo ServerInfo

	closeOnce sync.Once
	closeErr  error
}

// NewClient wraps an established transport and starts reading from it. Call
// Initialize before issuing other requests.
func NewClient(t Transport, optFns ...func(o *Options)) *Client {
	opts := Options{
		Name:          "mcp",
		ClientName:    "reviewswarm",
		ClientVersion: "0.1.0",
		ShutdownGrace: 3 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	c := &Client{
		transport: t,
		opts:      opts,
		pending:   map[int64]chan *Message{},
		done:      make(chan struct{}),
	}
	go c.readLoop()

	return c
}

// ServerConfig describes how to launch a stdio tool server.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
}

// Start launches the server process, performs the initialize handshake and
// returns a ready client. The process lives until Close.
func Start(ctx context.Context, cfg ServerConfig, optFns ...func(o *Options)) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp server %q: empty command", cfg.Name)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...) //nolint:gosec // command comes from trusted run configuration
	cmd.Dir = cfg.Dir
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: stdin: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: stdout: %w", cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: stderr: %w", cfg.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp server %q: start: %w", cfg.Name, err)
	}

	opts := append([]func(o *Options){func(o *Options) { o.Name = cfg.Name }}, optFns...)
	c := NewClient(NewStdioTransport(stdout, stdin), opts...)
	c.cmd = cmd
	c.stderrDone = make(chan struct{})

	go func() {
		defer close(c.stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			c.opts.Logger.Debug("mcp.server.stderr", "server", cfg.Name, "line", sc.Text())
		}
	}()

	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.opts.Name }

// ServerInfo returns what the server reported during initialize.
func (c *Client) ServerInfo() ServerInfo { return c.serverInfo }

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": c.opts.ClientName, "version": c.opts.ClientVersion},
	}

	var res struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	if err := c.request(ctx, "initialize", params, &res); err != nil {
		return fmt.Errorf("mcp server %q: initialize: %w", c.opts.Name, err)
	}
	c.serverInfo = res.ServerInfo

	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return fmt.Errorf("mcp server %q: initialized: %w", c.opts.Name, err)
	}

	c.opts.Logger.Info("mcp.client.initialized", "server", c.opts.Name, "server_name", res.ServerInfo.Name, "protocol", res.ProtocolVersion)

	return nil
}

// ListTools returns every tool the server offers, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var (
		all    []ToolInfo
		cursor string
	)
	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		var res struct {
			Tools      []ToolInfo `json:"tools"`
			NextCursor string     `json:"nextCursor,omitempty"`
		}
		if err := c.request(ctx, "tools/list", params, &res); err != nil {
			return nil, fmt.Errorf("mcp server %q: tools/list: %w", c.opts.Name, err)
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			return all, nil
		}
		cursor = res.NextCursor
	}
}

// CallTool invokes a remote tool by its server-side name.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var res CallToolResult
	if err := c.request(ctx, "tools/call", map[string]any{"name": name, "arguments": args}, &res); err != nil {
		return nil, fmt.Errorf("mcp server %q: tools/call %s: %w", c.opts.Name, name, err)
	}
	return &res, nil
}

// Close shuts the client down and terminates the server process. It is safe
// to call more than once; only the first call has an effect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.transport.Close()

		if c.cmd != nil && c.cmd.Process != nil {
			exited := make(chan error, 1)
			go func() {
				if c.stderrDone != nil {
					<-c.stderrDone
				}
				exited <- c.cmd.Wait()
			}()

			select {
			case <-exited:
			case <-time.After(c.opts.ShutdownGrace):
				_ = c.cmd.Process.Kill()
				<-exited
			}
		}

		c.opts.Logger.Debug("mcp.client.closed", "server", c.opts.Name)
	})
	return c.closeErr
}

func (c *Client) readLoop() {
	for {
		msg, err := c.transport.Receive(context.Background())
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			close(c.done)
			return
		}

		if msg.IsResponse() {
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			delete(c.pending, *msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		if msg.Method == "ping" && msg.ID != nil {
			_ = c.transport.Send(context.Background(), &Message{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage(`{}`)})
			continue
		}

		c.opts.Logger.Debug("mcp.client.message.ignored", "server", c.opts.Name, "method", msg.Method)
	}
}

func (c *Client) request(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}

	id := c.nextID.Add(1)
	ch := make(chan *Message, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrClosed
	default:
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.transport.Send(ctx, &Message{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}); err != nil {
		c.forget(id)
		return err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		if msg.Error != nil {
			return msg.Error
		}
		if out == nil || len(msg.Result) == 0 {
			return nil
		}
		return json.Unmarshal(msg.Result, out)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) notify(ctx context.Context, method string) error {
	return c.transport.Send(ctx, &Message{JSONRPC: "2.0", Method: method})
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
