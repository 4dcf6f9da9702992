package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HealthCheck reports one subsystem's liveness for GET /health.
type HealthCheck func(ctx context.Context) error

// MetricsSnapshot returns the JSON document served by GET /metrics (the
// daemon supplies cache statistics and breaker states), not a Prometheus
// exposition surface (spec.md §1
// excludes the Prometheus-scraping collaborator; this is the dump the
// excluded collaborator would scrape from).
type MetricsSnapshot func() map[string]any

// HTTPServer is the optional HTTP transport (spec.md §6): GET/POST /sse for
// the SSE channel, POST /mcp for a plain request/response body, and
// GET /health, GET /metrics for operational surfaces.
type HTTPServer struct {
	dispatcher *Dispatcher
	log        *slog.Logger
	apiKeyAuth string // if non-empty, Bearer token required on /sse and /mcp

	health  map[string]HealthCheck
	metrics MetricsSnapshot
}

// HTTPServerOption configures an HTTPServer at construction.
type HTTPServerOption func(*HTTPServer)

// WithBearerToken requires an `Authorization: Bearer <token>` header
// matching token on /sse and /mcp, mirroring the teacher's http_sse.go
// bearer-token check.
func WithBearerToken(token string) HTTPServerOption {
	return func(h *HTTPServer) { h.apiKeyAuth = token }
}

// WithHealthCheck registers a named subsystem probe for GET /health.
func WithHealthCheck(name string, check HealthCheck) HTTPServerOption {
	return func(h *HTTPServer) { h.health[name] = check }
}

// WithMetrics registers the counter source for GET /metrics.
func WithMetrics(m MetricsSnapshot) HTTPServerOption {
	return func(h *HTTPServer) { h.metrics = m }
}

// NewHTTPServer builds an HTTPServer around d.
func NewHTTPServer(d *Dispatcher, log *slog.Logger, opts ...HTTPServerOption) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	h := &HTTPServer{dispatcher: d, log: log, health: make(map[string]HealthCheck)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the http.Handler wiring every route named in spec.md §6.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", h.handleSSE)
	mux.HandleFunc("/mcp", h.handleMCP)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/metrics", h.handleMetrics)
	return mux
}

func (h *HTTPServer) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if h.apiKeyAuth == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token != h.apiKeyAuth {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// handleMCP services POST /mcp: request in the HTTP body, response in the
// HTTP body, per spec.md §6.
func (h *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, &RPCError{Code: codeParseError, Message: err.Error()}))
		return
	}

	ctx := WithClientID(r.Context(), clientIDForRequest(r))
	resp, hasResp := h.dispatcher.Handle(ctx, req)
	if !hasResp {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSSE services GET /sse (keep-alive stream; for a single-shot POST
// a request is accepted and its response returned as one SSE event) and
// POST /sse, per spec.md §6.
func (h *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(w, r) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := WithClientID(r.Context(), clientIDForRequest(r))

	if r.Method == http.MethodPost {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeSSEEvent(w, flusher, errorResponse(nil, &RPCError{Code: codeParseError, Message: err.Error()}))
			return
		}
		if resp, hasResp := h.dispatcher.Handle(ctx, req); hasResp {
			writeSSEEvent(w, flusher, resp)
		}
		return
	}

	// GET: keep-alive stream. Without an in-process event bus feeding
	// server-initiated notifications, this transport only emits periodic
	// pings so intermediaries don't time the connection out; tool calls on
	// a streaming session arrive via POST /sse above.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

// handleHealth services GET /health: a JSON document with overall status
// plus one entry per registered subsystem check, per spec.md §6.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.health))
	overall := "ok"
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			components[name] = "error: " + err.Error()
			overall = "degraded"
		} else {
			components[name] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": overall, "components": components})
}

// handleMetrics services GET /metrics: the core's own counter dump, per
// spec.md §6.
func (h *HTTPServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, h.metrics())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIDForRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
