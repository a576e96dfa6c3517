// Package signing implements the relay's canonical-string HMAC admission
// scheme: build a newline-joined canonical message, sign it with
// HMAC-SHA256, and verify it with nonce-replay and clock-skew defenses.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// EmptyBodyHash is the lowercase hex SHA-256 digest of the empty byte
// string. ws-auth callers have no HTTP body, so their payloadHash is always
// this constant.
const EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Op is the operation name embedded in the canonical string.
type Op string

const (
	OpRegisterPC Op = "register-pc"
	OpPendingSID Op = "pending-sid"
	OpWSAuth     Op = "ws-auth"
)

// Request is every field that feeds the canonical string plus the fields
// needed to verify it.
type Request struct {
	Op          Op
	Path        string
	PayloadHash string // lowercase hex SHA-256 of the body; EmptyBodyHash for ws-auth
	Iat         int64  // caller-supplied Unix seconds
	Nonce       string
	Sig         string // base64url signature supplied by the caller, empty when building to sign
}

// HashPayload returns the lowercase hex SHA-256 digest of body.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Canonical builds the newline-joined canonical string:
// "op \n path \n payloadHashHex \n iatSeconds \n nonce".
func Canonical(r Request) string {
	return strings.Join([]string{
		string(r.Op),
		r.Path,
		r.PayloadHash,
		strconv.FormatInt(r.Iat, 10),
		r.Nonce,
	}, "\n")
}
