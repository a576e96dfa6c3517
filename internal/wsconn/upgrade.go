package wsconn

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// preferredSubprotocol is offered back to the client whenever it is
// present in the client's Sec-WebSocket-Protocol list; otherwise the
// first client-offered protocol is echoed, matching gorilla/websocket's
// own Subprotocols helper semantics.
const preferredSubprotocol = "v1"

// Upgrader builds per-request upgraders sharing one CheckOrigin policy.
type Upgrader struct {
	checkOrigin func(r *http.Request) bool
	log         *slog.Logger
}

// NewUpgrader builds an Upgrader that accepts connections only from an
// origin in allowedOrigins, or from any origin when allowedOrigins is
// empty.
func NewUpgrader(allowedOrigins []string, log *slog.Logger) *Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Upgrader{
		checkOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
		log: log,
	}
}

// Serve upgrades r to a WebSocket, registers it with event, and blocks the
// calling goroutine running the connection's read loop until it closes.
func (u *Upgrader) Serve(w http.ResponseWriter, r *http.Request, event Dispatcher) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     u.checkOrigin,
		Subprotocols:    chosenSubprotocols(r),
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newConn(uuid.NewString(), ws, event, u.log)
	c.readLoop()
	return nil
}

// chosenSubprotocols reorders the client's offered list so "v1" is tried
// first if present; gorilla/websocket picks the first match it finds.
func chosenSubprotocols(r *http.Request) []string {
	offered := websocket.Subprotocols(r)
	for i, p := range offered {
		if p == preferredSubprotocol {
			offered[0], offered[i] = offered[i], offered[0]
			return offered
		}
	}
	return offered
}
