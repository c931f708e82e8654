package handlers

import (
	"log"
	"net/http"
	"time"

	"tasset-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades wallet connections for request status pushes
type WebSocketHandler struct {
	pushService *services.PushService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler instance
func NewWebSocketHandler(pushService *services.PushService) *WebSocketHandler {
	return &WebSocketHandler{
		pushService: pushService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWebSocket handles GET /api/v1/ws?token=. The JWT rides the query
// string because browsers cannot set headers on websocket upgrades.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Missing token query parameter",
			"code":    "MISSING_TOKEN",
		})
		return
	}

	claims, err := ValidateJWTToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Invalid or expired token",
			"code":    "INVALID_TOKEN",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed for %s: %v", claims.EVMAddress, err)
		return
	}
	defer conn.Close()

	unregister := h.pushService.Register(claims.EVMAddress, conn)
	defer unregister()

	conn.WriteJSON(map[string]interface{}{
		"type":      "connected",
		"address":   claims.EVMAddress,
		"timestamp": time.Now().UTC(),
	})

	// Read loop exists only to detect disconnect and answer pings; all
	// outbound traffic goes through the push service.
	conn.SetReadLimit(4096)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket closed unexpectedly for %s: %v", claims.EVMAddress, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}
