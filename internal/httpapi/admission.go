package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lumacast/relay/internal/audit"
	"github.com/lumacast/relay/internal/metrics"
	"github.com/lumacast/relay/internal/relay"
	"github.com/lumacast/relay/internal/signing"
)

// AdmissionDeps bundles the collaborators every signed admission handler
// needs. Metrics and Audit may both be nil (observability is additive,
// never load-bearing for the admission path itself).
type AdmissionDeps struct {
	Registry *relay.Registry
	Verifier *signing.Verifier
	Metrics  *metrics.Metrics
	Audit    *audit.Logger
}

// verifiedRequest is the outcome of reading and checking a signed HTTP
// request: either body is populated and verr is nil, or the caller should
// write verr and stop.
type verifiedRequest struct {
	body []byte
	verr *signing.VerifyError
}

func verifySignedRequest(r *http.Request, op signing.Op, verifier *signing.Verifier, eventID string) verifiedRequest {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return verifiedRequest{verr: &signing.VerifyError{Kind: signing.KindBadField}}
	}

	iat, _ := strconv.ParseInt(r.Header.Get("X-Relay-Iat"), 10, 64)
	req := signing.Request{
		Op:          op,
		Path:        r.URL.Path,
		PayloadHash: signing.HashPayload(body),
		Iat:         iat,
		Nonce:       r.Header.Get("X-Relay-Nonce"),
		Sig:         r.Header.Get("X-Relay-Sig"),
	}

	if verr := verifier.Verify(eventID, req); verr != nil {
		return verifiedRequest{verr: verr}
	}
	return verifiedRequest{body: body}
}

func (d AdmissionDeps) recordAdmission(r *http.Request, op, eventID, pcid, sid, outcome, code string, start time.Time) {
	if d.Metrics != nil {
		d.Metrics.Admission(op, code, time.Since(start).Seconds())
		if code == string(signing.KindNonceReplay) {
			d.Metrics.NonceReplay()
		}
	}
	if d.Audit != nil {
		d.Audit.Write(r.Context(), audit.Record{
			EventID:   eventID,
			Op:        op,
			PCID:      pcid,
			SID:       sid,
			Outcome:   outcome,
			Code:      code,
			RequestID: RequestIDFromContext(r.Context()),
		})
	}
}

type registerPCBody struct {
	PCID string `json:"pcid"`
}

// RegisterPC handles POST /e/{event}/register-pc.
func RegisterPC(d AdmissionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		eventID := mux.Vars(r)["event"]
		if !relay.ValidEventID(eventID) {
			writeError(w, http.StatusBadRequest, "E_BAD_FIELD")
			return
		}

		vr := verifySignedRequest(r, signing.OpRegisterPC, d.Verifier, eventID)
		if vr.verr != nil {
			writeVerifyError(w, vr.verr)
			d.recordAdmission(r, "register-pc", eventID, "", "", "deny", string(vr.verr.Kind), start)
			return
		}

		var body registerPCBody
		if err := json.Unmarshal(vr.body, &body); err != nil || !relay.ValidEventID(body.PCID) {
			writeError(w, http.StatusBadRequest, "E_BAD_FIELD")
			d.recordAdmission(r, "register-pc", eventID, body.PCID, "", "deny", "E_BAD_FIELD", start)
			return
		}

		event := d.Registry.Get(eventID)
		if event.Overloaded() {
			writeOverloaded(w)
			d.recordAdmission(r, "register-pc", eventID, body.PCID, "", "deny", "E_OVERLOADED", start)
			return
		}

		event.RegisterPC(body.PCID)

		writeOK(w)
		d.recordAdmission(r, "register-pc", eventID, body.PCID, "", "allow", "", start)
	}
}

type pendingSIDBody struct {
	PCID string `json:"pcid"`
	SID  string `json:"sid"`
	TTL  int    `json:"ttl"` // seconds, clamped to [30,120]
}

// PendingSID handles POST /e/{event}/pending-sid.
func PendingSID(d AdmissionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		eventID := mux.Vars(r)["event"]
		if !relay.ValidEventID(eventID) {
			writeError(w, http.StatusBadRequest, "E_BAD_FIELD")
			return
		}

		vr := verifySignedRequest(r, signing.OpPendingSID, d.Verifier, eventID)
		if vr.verr != nil {
			writeVerifyError(w, vr.verr)
			d.recordAdmission(r, "pending-sid", eventID, "", "", "deny", string(vr.verr.Kind), start)
			return
		}

		var body pendingSIDBody
		if err := json.Unmarshal(vr.body, &body); err != nil || !relay.ValidEventID(body.PCID) || !relay.ValidSID(body.SID) {
			writeError(w, http.StatusBadRequest, "E_BAD_FIELD")
			d.recordAdmission(r, "pending-sid", eventID, body.PCID, body.SID, "deny", "E_BAD_FIELD", start)
			return
		}

		event := d.Registry.Get(eventID)
		if event.Overloaded() {
			writeOverloaded(w)
			d.recordAdmission(r, "pending-sid", eventID, body.PCID, body.SID, "deny", "E_OVERLOADED", start)
			return
		}

		ttl := time.Duration(body.TTL) * time.Second
		if err := event.PendingSID(body.PCID, body.SID, ttl); err != nil {
			switch {
			case errors.Is(err, relay.ErrPCNotRegistered):
				writeError(w, http.StatusForbidden, "E_PC_NOT_REGISTERED")
				d.recordAdmission(r, "pending-sid", eventID, body.PCID, body.SID, "deny", "E_PC_NOT_REGISTERED", start)
			case errors.Is(err, relay.ErrSIDExists):
				writeError(w, http.StatusConflict, "E_SID_EXISTS")
				d.recordAdmission(r, "pending-sid", eventID, body.PCID, body.SID, "deny", "E_SID_EXISTS", start)
			default:
				// Not one of the two named preconditions: the pending-SID
				// store itself failed (e.g. Redis unreachable). The wire
				// vocabulary has no dedicated code for that, so it's
				// reported the same way transport backpressure is.
				writeError(w, http.StatusServiceUnavailable, "E_OVERLOADED")
				d.recordAdmission(r, "pending-sid", eventID, body.PCID, body.SID, "deny", "E_OVERLOADED", start)
			}
			return
		}

		writeOK(w)
		d.recordAdmission(r, "pending-sid", eventID, body.PCID, body.SID, "allow", "", start)
	}
}

// SidStatus handles GET /e/{event}/sid-status?sid=....  It is unsigned:
// anyone who already has the SID (e.g. from a scanned QR code) may poll it.
func SidStatus(d AdmissionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := mux.Vars(r)["event"]
		sid := r.URL.Query().Get("sid")
		if !relay.ValidEventID(eventID) || !relay.ValidSID(sid) {
			writeError(w, http.StatusBadRequest, "E_BAD_FIELD")
			return
		}

		event := d.Registry.Get(eventID)
		connected := event.SidStatus(sid)

		if d.Audit != nil {
			d.Audit.Write(r.Context(), audit.Record{
				EventID:   eventID,
				Op:        "sid-status",
				SID:       sid,
				Outcome:   "allow",
				RequestID: RequestIDFromContext(r.Context()),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "connected": connected})
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
