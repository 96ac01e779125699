package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/streakforge/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and runs it as a Hub
// client for the signed-in user.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.UserID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, ac.UserID, ac.SessionID)
		client.Run(r.Context())
	}
}
