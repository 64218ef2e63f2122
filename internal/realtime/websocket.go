package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/aviya/internal/agent"
	"github.com/ashureev/aviya/internal/domain"
	"github.com/ashureev/aviya/internal/identity"
	"github.com/ashureev/aviya/internal/metrics"
	"github.com/coder/websocket"
)

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error)
}

// WebSocketHandler serves chat over a WebSocket.
type WebSocketHandler struct {
	chat          Chatter
	cm            *ConnectionManager
	allowedOrigin string
	isDev         bool
	readLimit     int64
}

// NewWebSocketHandler creates a new WebSocket handler. readLimit bounds a
// single inbound frame; zero keeps the library default.
func NewWebSocketHandler(chat Chatter, cm *ConnectionManager, allowedOrigin string, isDev bool, readLimit int64) *WebSocketHandler {
	return &WebSocketHandler{
		chat:          chat,
		cm:            cm,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		readLimit:     readLimit,
	}
}

// wsMessage represents WebSocket message structure.
type wsMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// OwnerKey names the owner of a socket: the identity when signed in, the
// client IP otherwise.
func OwnerKey(r *http.Request) string {
	return identity.ClientKey(r)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := OwnerKey(r)
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "owner", owner, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "owner", owner)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "owner", owner)
		}
	}()
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	h.cm.Register(owner, sessionID, ws)
	defer h.cm.Unregister(owner, sessionID, ws)
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	h.readLoop(r.Context(), ws, identity.FromContext(r.Context()), owner, sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, caller *domain.Identity, owner, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "owner", owner)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "owner", owner)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if err := writeJSON(ctx, ws, wsMessage{Type: "error", Content: "invalid message"}); err != nil {
				return
			}
			continue
		}

		var out wsMessage
		switch msg.Type {
		case "message":
			out = h.handleMessage(ctx, caller, sessionID, msg)
		case "ping":
			out = wsMessage{Type: "pong"}
		default:
			out = wsMessage{Type: "error", Content: "unknown message type"}
		}

		if err := writeJSON(ctx, ws, out); err != nil {
			slog.Debug("Failed to write chat frame", "error", err, "owner", owner)
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, caller *domain.Identity, sessionID string, msg wsMessage) (out wsMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Chat over WebSocket panicked", "panic", rec, "session_id", sessionID)
			out = wsMessage{Type: "error", Content: agent.ReplyTrouble}
		}
	}()
	if msg.SessionID != "" {
		sessionID = identity.SanitizeSessionID(msg.SessionID)
	}
	resp, err := h.chat.Chat(ctx, agent.ChatRequest{
		Message:   msg.Content,
		SessionID: sessionID,
		Identity:  caller,
	})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			return wsMessage{Type: "error", Content: err.Error()}
		}
		slog.Error("Chat over WebSocket failed", "error", err, "session_id", sessionID)
		return wsMessage{Type: "error", Content: agent.ReplyTrouble}
	}
	return wsMessage{Type: "reply", Content: resp.Reply}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
