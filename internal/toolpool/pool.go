// Package toolpool implements the §4.2 ToolClientPool: per bot profile,
// a set of subprocess-based MCP tool servers aggregated into one tool
// catalog, adapted to the spec's stdio subprocess transport the way the
// teacher's provider adapters each wrap one external tool/API behind a
// common interface.
package toolpool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// Tool is one entry of an opened ToolSet's catalog.
type Tool struct {
	Name        string // bare name as the server reports it, last-wins across servers
	Description string
	Schema      json.RawMessage
	serverName  string
}

// ToolSet is the aggregated view Open returns: a bare tool name → Tool
// mapping plus the means to invoke one of them.
type ToolSet struct {
	pool  *Pool
	Tools map[string]Tool
}

// List returns the catalog as a slice, for handing to an LLMAdapter.
func (s *ToolSet) List() []Tool {
	out := make([]Tool, 0, len(s.Tools))
	for _, t := range s.Tools {
		out = append(out, t)
	}
	return out
}

// Invoke dispatches toolName to its owning subprocess.
func (s *ToolSet) Invoke(ctx context.Context, toolName string, args map[string]any) (string, error) {
	t, ok := s.Tools[toolName]
	if !ok {
		return "", apperr.NotFound("tool %q not found in this session's tool set", toolName)
	}
	return s.pool.invoke(ctx, t.serverName, toolName, args)
}

type serverEntry struct {
	name     string
	client   *client.Client
	lastUsed time.Time
}

// Pool owns the subprocess tool-server clients for exactly one active
// session (WhatsApp or public-web). Closing the session closes the pool.
type Pool struct {
	log zerolog.Logger

	mu      sync.Mutex
	servers map[string]*serverEntry // serverName -> entry

	idleTimeout time.Duration
	stopCleaner context.CancelFunc
}

// New constructs an empty pool. idleTimeout <= 0 disables idle eviction.
func New(log zerolog.Logger, idleTimeout time.Duration) *Pool {
	p := &Pool{
		log:         log,
		servers:     map[string]*serverEntry{},
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopCleaner = cancel
		go p.runIdleCleaner(ctx)
	}
	return p
}

// Open spawns one subprocess per enabled tool server on the profile,
// handshakes each, and aggregates their tool catalogs. A single server's
// failure to spawn, initialize, or list tools is logged and that server
// is omitted from the result; it does not abort the open.
func (p *Pool) Open(ctx context.Context, profile *store.BotProfile) (*ToolSet, error) {
	tools := map[string]Tool{}

	for _, cfg := range profile.ToolServers {
		if !cfg.Enabled {
			p.log.Info().Str("server", cfg.Name).Msg("tool server disabled, skipping")
			continue
		}

		c, err := p.connect(ctx, cfg)
		if err != nil {
			p.log.Error().Str("server", cfg.Name).Err(err).Msg("tool server open failed, omitting from tool set")
			continue
		}

		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			p.log.Error().Str("server", cfg.Name).Err(err).Msg("tool server list-tools failed, omitting from tool set")
			_ = c.Close()
			p.removeServer(cfg.Name)
			continue
		}

		for _, t := range res.Tools {
			schema, _ := json.Marshal(t.InputSchema)
			// Last-wins across servers: a later server's tool with the
			// same name silently replaces an earlier one, but dispatch
			// always routes to the server that owns the winning name.
			tools[t.Name] = Tool{
				Name:        t.Name,
				Description: t.Description,
				Schema:      schema,
				serverName:  cfg.Name,
			}
		}
	}

	return &ToolSet{pool: p, Tools: tools}, nil
}

func (p *Pool) connect(ctx context.Context, cfg store.ToolServer) (*client.Client, error) {
	p.mu.Lock()
	if existing, ok := p.servers[cfg.Name]; ok {
		existing.lastUsed = time.Now()
		p.mu.Unlock()
		return existing.client, nil
	}
	p.mu.Unlock()

	c, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("spawn tool server %q: %w", cfg.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start tool server %q: %w", cfg.Name, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "chatgateway", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("handshake tool server %q: %w", cfg.Name, err)
	}

	p.mu.Lock()
	p.servers[cfg.Name] = &serverEntry{name: cfg.Name, client: c, lastUsed: time.Now()}
	p.mu.Unlock()

	return c, nil
}

func (p *Pool) removeServer(name string) {
	p.mu.Lock()
	delete(p.servers, name)
	p.mu.Unlock()
}

// invoke dispatches a call to the subprocess owning serverName. It fails
// with a ToolInvocationError (apperr.Conflict) if the server has exited.
func (p *Pool) invoke(ctx context.Context, serverName, toolName string, args map[string]any) (string, error) {
	p.mu.Lock()
	entry, ok := p.servers[serverName]
	p.mu.Unlock()
	if !ok {
		return "", apperr.Conflict("tool server %q is not running", serverName)
	}

	entry.lastUsed = time.Now()

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	res, err := entry.client.CallTool(ctx, req)
	if err != nil {
		return "", apperr.Conflict("tool %q invocation failed: %v", toolName, err)
	}

	var out string
	for _, content := range res.Content {
		if text, ok := content.(mcp.TextContent); ok {
			out += text.Text
		}
	}
	if res.IsError {
		return out, apperr.Conflict("tool %q reported an error: %s", toolName, out)
	}
	return out, nil
}

// Close shuts down every subprocess. Per-server close errors are logged
// but do not abort the others.
func (p *Pool) Close() {
	if p.stopCleaner != nil {
		p.stopCleaner()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, entry := range p.servers {
		if err := entry.client.Close(); err != nil {
			p.log.Warn().Str("server", name).Err(err).Msg("error closing tool server")
		}
	}
	p.servers = map[string]*serverEntry{}
}

func (p *Pool) runIdleCleaner(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			p.mu.Lock()
			for name, entry := range p.servers {
				if now.Sub(entry.lastUsed) > p.idleTimeout {
					p.log.Info().Str("server", name).Msg("closing idle tool server")
					_ = entry.client.Close()
					delete(p.servers, name)
				}
			}
			p.mu.Unlock()
		}
	}
}
