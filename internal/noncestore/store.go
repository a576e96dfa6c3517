// Package noncestore provides per-event replay protection: a TTL-scoped set
// of recently seen nonces, with an in-memory implementation for
// single-process deployments and an optional Redis-backed one for
// multi-pod deployments.
package noncestore

import "time"

// Store claims nonces on behalf of one or more events. Claim is the only
// operation the signing verifier needs; it must be atomic ("insert if
// absent") so two concurrent requests racing on the same nonce cannot both
// observe "fresh".
type Store interface {
	// Claim attempts to atomically reserve nonce within eventID's namespace.
	// It returns true the first time a given (eventID, nonce) pair is seen
	// within ttl, and false on every subsequent call until the nonce
	// expires.
	Claim(eventID, nonce string) bool
}

// DefaultTTL is the replay window applied when a caller doesn't override it.
const DefaultTTL = 120 * time.Second
