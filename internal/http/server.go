// Package http is the remote tool facade: a JSON-RPC 2.0 endpoint plus a
// small REST surface over the same tool registry. Every mutating route sits
// behind the fixed-window rate limiter keyed by client IP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/ratelimit"
	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
	"github.com/temporal-agent/temporal-agent-mcp/internal/tools"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Options configures the facade server.
type Options struct {
	Addr       string
	Production bool // generic error bodies, no internals on the wire
	TrustProxy bool // honor X-Forwarded-For for rate-limit keying
}

// Server wires the registry, repository, limiter and signer behind HTTP.
type Server struct {
	registry *tools.Registry
	repo     store.Repository
	limiter  *ratelimit.Limiter
	signer   *safety.Signer
	opts     Options

	httpSrv *http.Server
}

func NewServer(registry *tools.Registry, repo store.Repository, limiter *ratelimit.Limiter, signer *safety.Signer, opts Options) *Server {
	s := &Server{
		registry: registry,
		repo:     repo,
		limiter:  limiter,
		signer:   signer,
		opts:     opts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /mcp", s.rateLimited(http.HandlerFunc(s.handleRPC)))
	mux.Handle("GET /mcp/tools", s.rateLimited(http.HandlerFunc(s.handleListTools)))
	mux.Handle("POST /mcp/tools/execute", s.rateLimited(http.HandlerFunc(s.handleExecute)))
	mux.Handle("GET /mcp/notifications", s.rateLimited(http.HandlerFunc(s.handleNotifications)))
	mux.Handle("POST /mcp/verify", s.rateLimited(http.HandlerFunc(s.handleVerify)))

	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.opts.Addr, "production", s.opts.Production)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// --- Middleware ---

// rateLimited applies the fixed-window limiter keyed by client IP and stamps
// the X-RateLimit headers on every response that passes.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.clientIP(r)
		d := s.limiter.Check(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP keys the rate limiter. The forwarded header only counts when the
// deployment says a trusted proxy sits in front; otherwise any client could
// mint fresh buckets per request.
func (s *Server) clientIP(r *http.Request) string {
	if s.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// readJSONBody enforces the content type, the 1 MiB cap, and that the body
// is a JSON object or array before handing bytes back.
func readJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ct := r.Header.Get("Content-Type")
	if mt, _, _ := strings.Cut(ct, ";"); strings.TrimSpace(mt) != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{
			"error": "Content-Type must be application/json",
		})
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]any{"error": "invalid JSON body"})
		return nil, false
	}
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "body must be a JSON object"})
		return nil, false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

// publicError decides how much of err leaves the process.
func (s *Server) publicError(err error) string {
	if s.opts.Production {
		return "internal error"
	}
	return err.Error()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func sessionContext(r *http.Request, sessionID string) (context.Context, error) {
	if err := store.ValidateSessionID(sessionID); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}
	return store.WithSessionID(r.Context(), sessionID), nil
}
