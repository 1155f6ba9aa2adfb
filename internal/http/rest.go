package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
)

// handleListTools serves GET /mcp/tools: the tool definitions without the
// JSON-RPC framing.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": s.registry.Definitions(),
	})
}

type executeRequest struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params"`
	Context struct {
		SessionID string `json:"sessionId"`
	} `json:"context"`
}

// handleExecute serves POST /mcp/tools/execute: direct tool invocation for
// clients that don't speak JSON-RPC.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Tool == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "tool is required"})
		return
	}

	sessionID := req.Context.SessionID
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-Id")
	}
	ctx, err := sessionContext(r, sessionID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	result := s.registry.Execute(ctx, req.Tool, req.Params)
	if result.IsError {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": result.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result.Data,
		"message": result.Message,
	})
}

// handleNotifications serves GET /mcp/notifications?session=: pull-and-mark
// of stored notifications for a session.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-Id")
	}
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "session is required"})
		return
	}
	ctx, err := sessionContext(r, sessionID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notes, err := s.repo.PullNotifications(ctx, sessionID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": s.publicError(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notes,
		"count":         len(notes),
	})
}

type verifyRequest struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	Timestamp string          `json:"timestamp"`
}

// handleVerify serves POST /mcp/verify: lets webhook receivers check a
// delivery signature against this server's secret.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Signature == "" || req.Timestamp == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "payload, signature and timestamp are required"})
		return
	}

	err := s.signer.Verify(req.Payload, req.Signature, req.Timestamp, safety.DefaultMaxSkew)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"verified_at": time.Now().UTC().Format(time.RFC3339),
	})
}
