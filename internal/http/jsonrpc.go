package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "temporal-agent-mcp"
	serverVersion   = "1.0"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func rpcOK(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFail(id json.RawMessage, code int, msg string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	SessionID string         `json:"sessionId,omitempty"`
}

// handleRPC serves POST /mcp: the JSON-RPC 2.0 entry point with the
// initialize, tools/list and tools/call methods.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, rpcFail(nil, codeParseError, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, http.StatusOK, rpcFail(req.ID, codeInvalidRequest, "invalid request"))
		return
	}

	switch req.Method {
	case "initialize":
		writeJSON(w, http.StatusOK, rpcOK(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
		}))

	case "tools/list":
		writeJSON(w, http.StatusOK, rpcOK(req.ID, map[string]any{
			"tools": s.registry.Definitions(),
		}))

	case "tools/call":
		s.handleToolCall(w, r, req)

	default:
		writeJSON(w, http.StatusOK, rpcFail(req.ID, codeMethodNotFound, "method not found: "+req.Method))
	}
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		writeJSON(w, http.StatusOK, rpcFail(req.ID, codeInvalidRequest, "params.name is required"))
		return
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-Id")
	}
	ctx, err := sessionContext(r, sessionID)
	if err != nil {
		writeJSON(w, http.StatusOK, rpcFail(req.ID, codeInvalidRequest, err.Error()))
		return
	}

	result := s.registry.Execute(ctx, params.Name, params.Arguments)
	if result.IsError {
		if result.Err != nil {
			slog.Warn("tool call failed", "tool", params.Name, "error", result.Err)
		}
		// Tool-level failures ride in the result per the tools convention;
		// codeInternalError is reserved for transport faults.
		writeJSON(w, http.StatusOK, rpcOK(req.ID, map[string]any{
			"isError": true,
			"content": []map[string]any{{"type": "text", "text": result.Message}},
		}))
		return
	}

	payload, err := json.Marshal(result.Data)
	if err != nil {
		writeJSON(w, http.StatusOK, rpcFail(req.ID, codeInternalError, s.publicError(err)))
		return
	}
	text := string(payload)
	if result.Data == nil {
		text = result.Message
	}
	writeJSON(w, http.StatusOK, rpcOK(req.ID, map[string]any{
		"isError": false,
		"content": []map[string]any{{"type": "text", "text": text}},
	}))
}
