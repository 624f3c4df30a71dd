package handlers

import (
	"net/http"

	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/service/notify"
)

// Streams the user's notifications over websocket until the client goes away
func handleNotifications(hub *notify.Hub, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		if err := notify.ServeWS(hub, w, r, user.ID.String()); err != nil {
			l.Warn("websocket upgrade failed", "user", user.ID, "error", err)
		}
	})
}
