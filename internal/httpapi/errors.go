package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/lumacast/relay/internal/signing"
)

// errorEnvelope is the {ok:false, error:{code}} body every admission
// failure returns, per the wire error-kind table.
type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code string `json:"code"`
}

// statusForKind maps a signing.Kind onto the HTTP status the admission
// table assigns it: 400 for malformed input, 401 for everything that
// fails cryptographic or freshness checks.
func statusForKind(k signing.Kind) int {
	switch k {
	case signing.KindMissingHeaders, signing.KindBadField:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{OK: false, Error: errorBody{Code: code}})
}

// writeVerifyError renders a *signing.VerifyError as the wire envelope,
// attaching X-Server-Time for clock-skew failures.
func writeVerifyError(w http.ResponseWriter, verr *signing.VerifyError) {
	if verr.Kind == signing.KindClockSkew {
		w.Header().Set("X-Server-Time", strconv.FormatInt(verr.ServerTime, 10))
	}
	writeError(w, statusForKind(verr.Kind), string(verr.Kind))
}

func writeOverloaded(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, "E_OVERLOADED")
}
