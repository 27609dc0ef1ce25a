// Package mcptool exposes the tools of MCP servers to the engine. A Bridge
// connects to servers, turns their tool listings into catalog entries and
// executes calls against the server that hosts each tool.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	llmstream "github.com/haowjy/meridian-stream-go"
)

const (
	clientName    = "meridian-stream"
	clientVersion = "1.0.0"
)

// Client is the part of an MCP client the bridge uses.
type Client interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type initializer interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
}

// serverConn is one connected server and its call guards.
type serverConn struct {
	name    string
	client  Client
	breaker *gobreaker.CircuitBreaker[*mcp.CallToolResult]
	limiter *rate.Limiter
	names   map[string]string // exposed tool name → MCP tool name
}

// Bridge implements llmstream.ToolExecutor for MCP-hosted tools.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	servers map[string]*serverConn
	order   []string
	tools   []llmstream.CatalogTool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithConfig replaces the default call limits. Servers listed in cfg are
// only connected by Connect.
func WithConfig(cfg Config) Option {
	return func(b *Bridge) { b.cfg = cfg }
}

// NewBridge creates a bridge with no servers.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
		servers: make(map[string]*serverConn),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect starts every server of cfg in parallel and discovers its tools.
// A server that fails is logged and skipped; Connect fails only when every
// configured server failed.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Bridge, error) {
	b := NewBridge(append([]Option{WithConfig(cfg)}, opts...)...)

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range cfg.Servers {
		g.Go(func() error {
			if err := b.ConnectServer(gctx, sc); err != nil {
				b.logger.Warn("mcp server skipped", "server", sc.Name, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(cfg.Servers) > 0 && len(errs) == len(cfg.Servers) {
		return nil, fmt.Errorf("all mcp servers failed: %w", errors.Join(errs...))
	}
	return b, nil
}

// ConnectServer starts one configured server and adds its tools.
func (b *Bridge) ConnectServer(ctx context.Context, sc ServerConfig) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	var c *mcpclient.Client
	switch sc.Transport {
	case TransportStdio:
		var err error
		c, err = mcpclient.NewStdioMCPClient(sc.Command, envSlice(sc.Env), sc.Args...)
		if err != nil {
			return fmt.Errorf("mcp server %q: create stdio client: %w", sc.Name, err)
		}
	case TransportHTTP:
		t, err := transport.NewStreamableHTTP(sc.URL)
		if err != nil {
			return fmt.Errorf("mcp server %q: create http transport: %w", sc.Name, err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("mcp server %q: start http client: %w", sc.Name, err)
		}
	}

	b.logger.Info("mcp server connected", "server", sc.Name, "transport", sc.Transport)
	return b.AddClient(ctx, sc.Name, c)
}

// AddInProcess serves the tools of an in-process MCP server.
func (b *Bridge) AddInProcess(ctx context.Context, name string, srv *mcpserver.MCPServer) error {
	c, err := mcpclient.NewInProcessClient(srv)
	if err != nil {
		return fmt.Errorf("mcp server %q: create in-process client: %w", name, err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp server %q: start in-process client: %w", name, err)
	}
	return b.AddClient(ctx, name, c)
}

// AddClient initializes c when it supports the handshake, lists its tools
// and registers them under name. The bridge owns c from here on and closes
// it on failure.
func (b *Bridge) AddClient(ctx context.Context, name string, c Client) error {
	if ic, ok := c.(initializer); ok {
		req := mcp.InitializeRequest{}
		req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
		if _, err := ic.Initialize(ctx, req); err != nil {
			_ = c.Close()
			return fmt.Errorf("mcp server %q: initialize: %w", name, err)
		}
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("mcp server %q: list tools: %w", name, err)
	}

	conn := &serverConn{
		name:    name,
		client:  c,
		breaker: b.newBreaker(name),
		limiter: b.newLimiter(),
		names:   make(map[string]string, len(listed.Tools)),
	}

	var tools []llmstream.CatalogTool
	for _, t := range listed.Tools {
		exposed := ToolName(name, t.Name)
		if _, dup := conn.names[exposed]; dup {
			b.logger.Warn("mcp tool name collides after sanitizing, skipped", "server", name, "tool", t.Name)
			continue
		}
		conn.names[exposed] = t.Name
		tools = append(tools, llmstream.CatalogTool{
			Definition: &llmstream.ToolDefinition{
				Name:        exposed,
				Description: description(name, t),
				InputSchema: inputSchema(t),
				Server:      name,
			},
			Executor: b,
		})
		b.logger.Debug("mcp tool discovered", "server", name, "tool", t.Name, "name", exposed)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.servers[name]; exists {
		_ = c.Close()
		return fmt.Errorf("mcp server %q is already connected", name)
	}
	b.servers[name] = conn
	b.order = append(b.order, name)
	b.tools = append(b.tools, tools...)

	b.logger.Info("mcp tools discovered", "server", name, "count", len(tools))
	return nil
}

// Tools returns the catalog entries of every connected server.
func (b *Bridge) Tools() []llmstream.CatalogTool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]llmstream.CatalogTool, len(b.tools))
	copy(out, b.tools)
	return out
}

// Catalog builds an immutable catalog of the bridge's tools plus any local
// tools given.
func (b *Bridge) Catalog(local ...llmstream.CatalogTool) (*llmstream.ToolCatalog, error) {
	return llmstream.NewToolCatalog(append(b.Tools(), local...)...)
}

// CallTool executes a discovered tool on its server. Calls wait for the
// server's rate limiter and are rejected while its breaker is open.
func (b *Bridge) CallTool(ctx context.Context, def *llmstream.ToolDefinition, args map[string]any) (*llmstream.ToolResult, error) {
	b.mu.RLock()
	conn, ok := b.servers[def.Server]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (server %q not connected)", llmstream.ErrUnknownTool, def.Name, def.Server)
	}
	mcpName, ok := conn.names[def.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmstream.ErrUnknownTool, def.Name)
	}

	if err := conn.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = mcpName
	req.Params.Arguments = args

	b.logger.Debug("mcp tool call", "server", conn.name, "tool", mcpName)
	result, err := conn.breaker.Execute(func() (*mcp.CallToolResult, error) {
		return conn.client.CallTool(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("mcp server %q unavailable: %w", conn.name, err)
		}
		return nil, fmt.Errorf("mcp tool %s: %w", mcpName, err)
	}
	if result == nil {
		return &llmstream.ToolResult{}, nil
	}
	return convertResult(result), nil
}

// BreakerState reports the breaker state of a connected server.
func (b *Bridge) BreakerState(server string) (gobreaker.State, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conn, ok := b.servers[server]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return conn.breaker.State(), true
}

// Close shuts down every server connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, name := range b.order {
		if err := b.servers[name].client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("mcp server %q: %w", name, err))
		}
	}
	b.servers = make(map[string]*serverConn)
	b.order = nil
	b.tools = nil
	return errors.Join(errs...)
}

func (b *Bridge) newBreaker(name string) *gobreaker.CircuitBreaker[*mcp.CallToolResult] {
	maxFailures := b.cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultConfig().Breaker.MaxFailures
	}
	return gobreaker.NewCircuitBreaker[*mcp.CallToolResult](gobreaker.Settings{
		Name:        "mcp:" + name,
		MaxRequests: 1,
		Interval:    b.cfg.Breaker.Interval,
		Timeout:     b.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			b.logger.Warn("mcp circuit breaker state change", "breaker", cbName, "from", from.String(), "to", to.String())
		},
		// A caller giving up says nothing about the server's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (b *Bridge) newLimiter() *rate.Limiter {
	if b.cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := b.cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(b.cfg.RatePerSecond), burst)
}

// ToolName is the catalog name of an MCP tool: server and tool joined by
// an underscore, with characters vendors reject replaced.
func ToolName(server, tool string) string {
	return sanitizeName(server) + "_" + sanitizeName(tool)
}

func description(server string, t mcp.Tool) string {
	if t.Description != "" {
		return t.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", t.Name, server)
}

// sanitizeName keeps [A-Za-z0-9_-] and replaces everything else.
func sanitizeName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
