package httpapi

import (
	"encoding/json"
	"net/http"
)

// controllerHTML is a minimal placeholder for the mobile controller page.
// The real controller UI ships with the desktop companion app: a thin
// static page that opens a WebSocket to /e/{event}/ws and drives the
// join/cmd/evt frame vocabulary.
const controllerHTML = `<!DOCTYPE html>
<html>
<head><title>relay controller</title></head>
<body>
<p>Controller UI is served by the desktop companion app; this page is a
placeholder endpoint for /app.</p>
</body>
</html>`

// App serves GET /app, the static mobile controller shell.
func App(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(controllerHTML))
}

// Healthz serves GET /healthz.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": 1})
}
