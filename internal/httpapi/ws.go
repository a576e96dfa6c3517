package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumacast/relay/internal/relay"
	"github.com/lumacast/relay/internal/wsconn"
)

// WebSocket handles GET /e/{event}/ws. Upgrade never authenticates; the
// in-band pc-auth frame does. Serve blocks the request goroutine for the
// connection's lifetime, matching gorilla/websocket's usual handler shape.
func WebSocket(registry *relay.Registry, upgrader *wsconn.Upgrader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := mux.Vars(r)["event"]
		if !relay.ValidEventID(eventID) {
			http.Error(w, "invalid event id", http.StatusBadRequest)
			return
		}

		event := registry.Get(eventID)
		if err := upgrader.Serve(w, r, event); err != nil {
			log.Debug("httpapi: websocket upgrade failed", "event", eventID, "error", err)
		}
	}
}
