package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// NonceClaimer is the minimal interface the verifier needs from a nonce
// store: atomically claim a nonce for an event, returning false if it was
// already seen within its TTL. internal/noncestore implements this; kept as
// a local interface (rather than importing that package) so signing stays
// a leaf package with no dependency on the persistence tier.
type NonceClaimer interface {
	Claim(eventID, nonce string) (fresh bool)
}

// Verifier holds the process-wide shared secret and the clock-skew bound
// and verifies signed requests against a per-event nonce store.
type Verifier struct {
	secret      []byte
	maxSkewSecs int64
	nowUnix     func() int64
	nonces      NonceClaimer
}

// NewVerifier builds a Verifier. maxSkewSecs is the symmetric bound on
// |now-iat|. nowFn defaults to the wall clock and is overridable for tests.
func NewVerifier(secret string, maxSkewSecs int64, nonces NonceClaimer, nowFn func() int64) *Verifier {
	return &Verifier{
		secret:      []byte(secret),
		maxSkewSecs: maxSkewSecs,
		nonces:      nonces,
		nowUnix:     nowFn,
	}
}

// Sign computes the base64url (no padding) HMAC-SHA256 signature of the
// canonical string for r.
func (v *Verifier) Sign(r Request) string {
	return Sign(v.secret, r)
}

// Sign is the free-function form, useful for clients/tests that hold the
// secret directly rather than through a Verifier.
func Sign(secret []byte, r Request) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(Canonical(r)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks field presence, clock skew, nonce freshness, signature
// validity, and — for ws-auth — that the payload hash matches the
// empty-body constant. eventID scopes nonce replay to a single event.
func (v *Verifier) Verify(eventID string, r Request) *VerifyError {
	if r.Op == "" || r.Path == "" || r.PayloadHash == "" || r.Nonce == "" || r.Sig == "" || r.Iat == 0 {
		return errKind(KindMissingHeaders)
	}

	if r.Op == OpWSAuth && r.PayloadHash != EmptyBodyHash {
		return errKind(KindBadPayloadHash)
	}

	now := v.nowUnix()
	skew := now - r.Iat
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkewSecs {
		return &VerifyError{Kind: KindClockSkew, ServerTime: now}
	}

	expected := Sign(v.secret, Request{
		Op:          r.Op,
		Path:        r.Path,
		PayloadHash: r.PayloadHash,
		Iat:         r.Iat,
		Nonce:       r.Nonce,
	})
	sigOK := constantTimeEqual(expected, r.Sig)
	if !sigOK {
		return errKind(KindBadSignature)
	}

	// Nonce replay is checked after signature validity so an attacker
	// probing nonces can't distinguish "bad signature" from "nonce burned"
	// for a forged request — but still before admission succeeds.
	if fresh := v.nonces.Claim(eventID, r.Nonce); !fresh {
		return errKind(KindNonceReplay)
	}

	return nil
}

// constantTimeEqual compares two base64url strings in constant time by
// comparing their decoded byte forms with hmac.Equal.
func constantTimeEqual(a, b string) bool {
	ab, errA := base64.RawURLEncoding.DecodeString(a)
	bb, errB := base64.RawURLEncoding.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	return hmac.Equal(ab, bb)
}
