// Package httpapi assembles the relay's HTTP + WebSocket surface: CORS and
// logging middleware, the signed admission endpoints, and the WebSocket
// upgrade route.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumacast/relay/internal/metrics"
	"github.com/lumacast/relay/internal/wsconn"
)

// Deps bundles every collaborator NewRouter wires into routes.
type Deps AdmissionDeps

// NewRouter builds the relay's full route table.
func NewRouter(d Deps, corsAllowOrigins []string, upgrader *wsconn.Upgrader, enableMetrics bool, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", Healthz).Methods(http.MethodGet)
	r.HandleFunc("/app", App).Methods(http.MethodGet)

	if enableMetrics {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	admission := AdmissionDeps(d)
	r.HandleFunc("/e/{event}/register-pc", RegisterPC(admission)).Methods(http.MethodPost)
	r.HandleFunc("/e/{event}/pending-sid", PendingSID(admission)).Methods(http.MethodPost)
	r.HandleFunc("/e/{event}/sid-status", SidStatus(admission)).Methods(http.MethodGet)
	r.HandleFunc("/e/{event}/ws", WebSocket(d.Registry, upgrader, log)).Methods(http.MethodGet)

	r.Use(CORSMiddleware(corsAllowOrigins))
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "E_BAD_FIELD")
	})

	// A bare OPTIONS on any path is a CORS preflight; mux only matches
	// routes with an explicit OPTIONS method otherwise, so give every
	// registered path one via MatcherFunc.
	r.MatcherFunc(func(req *http.Request, match *mux.RouteMatch) bool {
		return req.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
