// Package ws implements the bidirectional WebSocket channel (spec §6):
// JSON frames of shape {type, ...}, with auth/chat/ping message types.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	authapp "alex/internal/auth/app"
	authdomain "alex/internal/auth/domain"
	"alex/internal/dispatch"
	"alex/internal/shared/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// frame is the wire shape of every inbound and outbound message.
type frame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserInput string `json:"user_input,omitempty"`
	Character string `json:"character,omitempty"`
	Status    string `json:"status,omitempty"`
	Response  string `json:"response,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Handler upgrades HTTP connections to the bidirectional channel, enforcing
// that unauthenticated connections may only send auth and ping frames.
type Handler struct {
	auth   *authapp.Service
	core   *dispatch.Core
	logger *logging.Logger
}

// NewHandler builds a Handler wired to auth and the dispatch core.
func NewHandler(auth *authapp.Service, core *dispatch.Core) *Handler {
	return &Handler{auth: auth, core: core, logger: logging.HTTPLogger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	var claims authdomain.Claims
	authenticated := false

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}

		switch in.Type {
		case "auth":
			parsed, err := h.auth.ParseAccessToken(r.Context(), in.Token)
			status := "ok"
			if err != nil {
				status = "invalid"
			} else {
				claims = parsed
				authenticated = true
			}
			_ = conn.WriteJSON(frame{Type: "auth_response", Status: status})

		case "ping":
			_ = conn.WriteJSON(frame{Type: "pong", Timestamp: time.Now().UTC().Format(time.RFC3339)})

		case "chat":
			if !authenticated {
				_ = conn.WriteJSON(frame{Type: "error", Message: "authenticate before sending chat frames"})
				continue
			}
			resp, err := h.core.Chat(r.Context(), dispatch.ChatRequest{
				UserID: claims.Subject, ExternalSessionID: in.SessionID, UserInput: in.UserInput, Character: in.Character,
			})
			if err != nil {
				_ = conn.WriteJSON(frame{Type: "error", Message: err.Error()})
				continue
			}
			_ = conn.WriteJSON(frame{
				Type: "chat_response", SessionID: resp.SessionID, Character: resp.Character,
				Response: resp.Response, Timestamp: resp.Timestamp.UTC().Format(time.RFC3339),
			})

		default:
			_ = conn.WriteJSON(frame{Type: "error", Message: "unknown frame type " + in.Type})
		}
	}
}
