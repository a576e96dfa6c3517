package relay

import (
	"errors"
	"time"

	"github.com/lumacast/relay/internal/sidstore"
)

// ErrPCNotRegistered is returned by PendingSID when pcid has never
// completed RegisterPC.
var ErrPCNotRegistered = errors.New("pc not registered")

// ErrSIDExists is returned by PendingSID when sid is already pending.
var ErrSIDExists = errors.New("sid already pending")

// RegisterPC adds pcid to the event's registered set. It is idempotent:
// calling it again for an already-registered pcid succeeds silently.
func (e *Event) RegisterPC(pcid string) {
	e.do(func() {
		e.registered[pcid] = true
	})
}

// PendingSID pre-registers sid as claimable, bound to pcid, for ttl
// (the sidstore.Store's Create clamps it via sidstore.ClampTTL).
func (e *Event) PendingSID(pcid, sid string, ttl time.Duration) error {
	var result error
	e.do(func() {
		if !e.registered[pcid] {
			result = ErrPCNotRegistered
			return
		}
		if err := e.sids.Create(e.id, sid, pcid, ttl); err != nil {
			if errors.Is(err, sidstore.ErrExists) {
				result = ErrSIDExists
				return
			}
			result = err
		}
	})
	return result
}

// SidStatus reports whether sid has been claimed by a mobile join.
func (e *Event) SidStatus(sid string) bool {
	var connected bool
	e.do(func() {
		entry, ok := e.sids.Get(e.id, sid)
		connected = ok && entry.Claimed
	})
	return connected
}
