package rpcserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// ToolHandler is the contract the Tool Dispatcher routes tools/call onto.
// toolhandlers.Handlers implements it; rpcserver knows nothing about graph
// semantics beyond this seam.
type ToolHandler interface {
	// Tools returns the schema for every callable tool, for tools/list.
	Tools() []ToolSchema
	// Call invokes the named tool with clientID (for rate limiting) and
	// apiKey (for the admin-operation auth gate), returning a
	// JSON-marshalable result or a *graphtypes.Error.
	Call(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error)
}

// Config tunes the Dispatcher.
type Config struct {
	ServerName      string
	ServerVersion   string
	GlobalDeadline  time.Duration
}

// DefaultConfig matches spec.md §5's 30-second global deadline.
func DefaultConfig() Config {
	return Config{ServerName: "kgmemory", ServerVersion: "0.1.0", GlobalDeadline: 30 * time.Second}
}

// Dispatcher parses incoming JSON-RPC 2.0 requests, validates the
// top-level method, and routes tools/call onto a ToolHandler, per spec.md
// §6 and §4.9. It is transport-agnostic: stdio.go and http.go both drive
// it with raw request bytes.
type Dispatcher struct {
	cfg     Config
	handler ToolHandler
	log     *slog.Logger

	ready bool
}

// New returns a Dispatcher wrapping handler.
func New(cfg Config, handler ToolHandler, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{cfg: cfg, handler: handler, log: log}
}

// clientIDKey is the context key a transport stores the caller's
// client identifier under (an IP, a session token, or "stdio" for the
// single-client stdio transport), consumed by the rate limiter in
// toolhandlers.
type clientIDKey struct{}

// WithClientID attaches a client identifier to ctx for downstream rate
// limiting.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientIDFrom extracts the client identifier attached by WithClientID,
// defaulting to "unknown".
func ClientIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// apiKeyKey is the context key a transport stores the caller-supplied API
// key under (an Authorization header, or a stdio sidecar's config value).
type apiKeyKey struct{}

// WithAPIKey attaches the caller's API key to ctx.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyKey{}, key)
}

func apiKeyFrom(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyKey{}).(string); ok {
		return v
	}
	return ""
}

// Handle dispatches one JSON-RPC request, returning the Response to send
// (or the zero Response for a notification, which expects none). Every
// call is wrapped with the configured global deadline, per spec.md §5.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Response, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.GlobalDeadline)
	defer cancel()

	switch req.Method {
	case "initialize":
		result, err := d.handleInitialize()
		return d.respond(req, result, err)
	case "initialized":
		d.ready = true
		return Response{}, false
	case "ping":
		return d.respond(req, map[string]any{"status": "ok"}, nil)
	case "tools/list":
		return d.respond(req, map[string]any{"tools": d.handler.Tools()}, nil)
	case "tools/call":
		result, err := d.handleToolsCall(ctx, req.Params)
		return d.respond(req, result, err)
	default:
		if req.IsNotification() {
			return Response{}, false
		}
		return errorResponse(req.ID, &RPCError{Code: codeMethodNotFound, Message: "unknown method: " + req.Method}), true
	}
}

func (d *Dispatcher) respond(req Request, result any, err error) (Response, bool) {
	if req.IsNotification() {
		if err != nil {
			d.log.Warn("rpcserver: error on notification", "method", req.Method, "error", err)
		}
		return Response{}, false
	}
	if err != nil {
		return errorResponse(req.ID, toRPCError(err)), true
	}
	return successResponse(req.ID, result), true
}

func (d *Dispatcher) handleInitialize() (any, error) {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":   map[string]any{"listChanged": false},
			"logging": map[string]any{},
		},
		ServerInfo: ServerInfo{Name: d.cfg.ServerName, Version: d.cfg.ServerVersion},
	}, nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p ToolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("params", "malformed tools/call params: "+err.Error())
	}
	clientID := ClientIDFrom(ctx)
	apiKey := apiKeyFrom(ctx)
	return d.handler.Call(ctx, clientID, apiKey, p.Name, p.Arguments)
}
