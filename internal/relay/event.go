package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lumacast/relay/internal/sidstore"
	"github.com/lumacast/relay/internal/signing"
)

const (
	heartbeatInterval = 25 * time.Second
	offlineGrace      = 45 * time.Second
)

// Event owns every socket, map, and timer scoped to one event identifier.
// All mutation happens inside run, fed by a single mailbox channel, so no
// handler needs its own locking.
type Event struct {
	id string
	ch chan func()

	pcBySocket   map[string]Socket          // pcid -> socket
	mobilesBySid map[string]map[Socket]bool // sid -> mobile sockets
	meta         map[Socket]*socketMeta     // every tracked socket
	registered   map[string]bool            // registeredPcs

	graceTimers map[string]*time.Timer // pcid -> offline-grace timer

	heartbeat *time.Ticker
	hbStop    chan struct{}

	verifier *signing.Verifier
	sids     sidstore.Store
	metrics  Metrics
	log      *slog.Logger
	now      func() time.Time
}

func newEvent(id string, verifier *signing.Verifier, sids sidstore.Store, metrics Metrics, log *slog.Logger) *Event {
	e := &Event{
		id:           id,
		ch:           make(chan func(), 256),
		pcBySocket:   make(map[string]Socket),
		mobilesBySid: make(map[string]map[Socket]bool),
		meta:         make(map[Socket]*socketMeta),
		registered:   make(map[string]bool),
		graceTimers:  make(map[string]*time.Timer),
		verifier:     verifier,
		sids:         sids,
		metrics:      metrics,
		log:          log.With("event", id),
		now:          time.Now,
	}
	go e.run()
	return e
}

func (e *Event) socketConnected(role Role) {
	if e.metrics != nil {
		e.metrics.SocketConnected(string(role))
	}
}

func (e *Event) socketDisconnected(role Role) {
	if e.metrics != nil {
		e.metrics.SocketDisconnected(string(role))
	}
}

func (e *Event) frameForwarded(direction string) {
	if e.metrics != nil {
		e.metrics.FrameForwarded(direction)
	}
}

func (e *Event) nonceReplay() {
	if e.metrics != nil {
		e.metrics.NonceReplay()
	}
}

func (e *Event) run() {
	for fn := range e.ch {
		fn()
	}
}

// do posts fn to the event's mailbox and blocks until it has run, for
// callers (HTTP handlers) that need the result before they can respond.
func (e *Event) do(fn func()) {
	done := make(chan struct{})
	e.ch <- func() { fn(); close(done) }
	<-done
}

// post posts fn to the event's mailbox without waiting, for frame handling
// and timer callbacks that don't need to synchronize with the caller.
func (e *Event) post(fn func()) {
	e.ch <- fn
}

// Overloaded reports whether the event's mailbox is saturated, meaning its
// single actor goroutine is falling behind. HTTP admission handlers check
// this before posting work so they can fail fast with E_OVERLOADED instead
// of blocking indefinitely on a wedged event.
func (e *Event) Overloaded() bool {
	return len(e.ch) >= cap(e.ch)
}

// Accept registers a freshly upgraded socket before it has authenticated,
// so it participates in the heartbeat from connection time.
func (e *Event) Accept(s Socket) {
	e.post(func() {
		e.meta[s] = &socketMeta{lastSeen: e.now()}
		e.ensureHeartbeat()
	})
}

// Dispatch parses and handles one inbound frame from s.
func (e *Event) Dispatch(s Socket, raw []byte) {
	e.post(func() {
		var in Frame
		if err := json.Unmarshal(raw, &in); err != nil {
			_ = s.Send(errFrame("E_BAD_JSON"))
			return
		}
		if in.V != 1 {
			_ = s.Send(errFrame("E_BAD_VERSION"))
			return
		}
		e.touch(s)
		switch in.Type {
		case "pc-auth":
			e.handlePCAuth(s, in)
		case "join":
			e.handleJoin(s, in)
		case "cmd":
			e.handleCmd(s, in)
		case "evt":
			e.handleEvt(s, in)
		case "hb-ack":
			// lastSeen already bumped by touch above.
		default:
			echo := in
			_ = s.Send(Frame{V: 1, Type: "evt", Echo: &echo})
		}
	})
}

// Disconnect removes s from every index it belongs to and, for a PC
// socket, starts the offline-grace sequence.
func (e *Event) Disconnect(s Socket) {
	e.post(func() {
		e.remove(s)
	})
}

func (e *Event) touch(s Socket) {
	if m, ok := e.meta[s]; ok {
		m.lastSeen = e.now()
	}
}

func (e *Event) remove(s Socket) {
	m, ok := e.meta[s]
	if !ok {
		return
	}
	delete(e.meta, s)
	e.detach(s, m)
	e.maybeStopHeartbeat()
}

// detach unbinds s from the role index its meta points at, leaving e.meta
// alone. For a PC socket that still owns its pcBySocket entry this is the
// moment its mobiles learn the PC is gone; a socket already superseded by
// a newer pc-auth detaches silently.
func (e *Event) detach(s Socket, m *socketMeta) {
	switch m.role {
	case RoleMobile:
		if set, ok := e.mobilesBySid[m.sid]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(e.mobilesBySid, m.sid)
			}
		}
		e.socketDisconnected(RoleMobile)
	case RolePC:
		if e.pcBySocket[m.pcid] == s {
			delete(e.pcBySocket, m.pcid)
			e.broadcastToPC(m.pcid, "pc-offline", nil)
			e.startGrace(m.pcid)
		}
		e.socketDisconnected(RolePC)
	}
}

// broadcastToPC fans an evt frame out to every mobile bound to pcid,
// regardless of which sid they joined under.
func (e *Event) broadcastToPC(pcid, evt string, data json.RawMessage) {
	for sid, set := range e.mobilesBySid {
		for s := range set {
			if e.meta[s] != nil && e.meta[s].pcid == pcid {
				if err := s.Send(evtFrame(sid, evt, data)); err != nil {
					e.remove(s)
				}
			}
		}
	}
}
