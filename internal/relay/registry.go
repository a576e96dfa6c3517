package relay

import (
	"log/slog"
	"sync"

	"github.com/lumacast/relay/internal/sidstore"
	"github.com/lumacast/relay/internal/signing"
)

// Registry maps event identifiers to their singleton Event instance,
// creating one on first reference. Every event in the registry persists
// for the process lifetime; nothing ever removes an entry.
type Registry struct {
	mu     sync.Mutex
	events map[string]*Event

	verifier *signing.Verifier
	sids     sidstore.Store
	metrics  Metrics
	log      *slog.Logger
}

// NewRegistry builds a Registry sharing one verifier and one pending-SID
// store across every event it creates; both of those already scope their
// state by event identifier internally. metrics may be nil.
func NewRegistry(verifier *signing.Verifier, sids sidstore.Store, metrics Metrics, log *slog.Logger) *Registry {
	return &Registry{
		events:   make(map[string]*Event),
		verifier: verifier,
		sids:     sids,
		metrics:  metrics,
		log:      log,
	}
}

// Get returns the Event for id, creating it if this is the first
// reference.
func (r *Registry) Get(id string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.events[id]; ok {
		return e
	}
	e := newEvent(id, r.verifier, r.sids, r.metrics, r.log)
	r.events[id] = e
	if r.metrics != nil {
		r.metrics.EventCreated()
	}
	return e
}

// Len reports how many events have been created.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
