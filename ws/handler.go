package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hbl306/phongtro57-chat/internal/logger"
	"github.com/hbl306/phongtro57-chat/internal/services"
	chatservice "github.com/hbl306/phongtro57-chat/internal/services/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins once the web client domain is fixed
	},
}

// Handler authenticates websocket connections and hands them to the hub.
type Handler struct {
	Hub *Hub

	identity    *services.IdentityService
	chatService *chatservice.ChatService
}

func NewHandler(hub *Hub, identity *services.IdentityService, chatSvc *chatservice.ChatService) *Handler {
	return &Handler{
		Hub:         hub,
		identity:    identity,
		chatService: chatSvc,
	}
}

// ServeWS upgrades the connection after resolving the credential. An invalid
// or missing credential rejects the connection before any room operation is
// possible. Browsers cannot set headers on a websocket handshake, so the
// token is also accepted as a query parameter.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}

	ident, err := h.identity.Resolve(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Warn("ws upgrade failed")
		return
	}

	client := newClient(conn, ident, h.Hub, h.chatService)

	// Every connection sits in its own inbox room; agents also watch the
	// shared agents room so un-joined support threads still raise badges.
	h.Hub.Join(UserRoom(ident.UserID), client)
	if ident.Role.IsAgent() {
		h.Hub.Join(agentsRoom, client)
	}

	logger.Info("ws client connected", "user_id", ident.UserID, "role", ident.Role)

	go client.readPump()
	go client.writePump()
}
