package events

import "sync"

// Event is a structured record of a state change emitted by the escrow
// engine. Attributes carry string-encoded payload fields so downstream
// consumers (feeds, indexers, tests) never depend on internal types.
type Event struct {
	Type       string            `json:"type"`
	Sequence   int64             `json:"sequence"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := &Event{Type: e.Type, Sequence: e.Sequence, Attributes: make(map[string]string, len(e.Attributes))}
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	return clone
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// It is the default wiring for components that expose events optionally.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Recorder retains the most recent events in memory so the gateway can serve
// an audit feed and tests can assert on emission order.
type Recorder struct {
	mu      sync.RWMutex
	limit   int
	nextSeq int64
	events  []*Event
}

// NewRecorder builds a recorder that keeps at most limit events. A
// non-positive limit falls back to a sane default.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1024
	}
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface. Events are cloned on ingress so the
// recorder never aliases caller-owned attribute maps.
func (r *Recorder) Emit(evt *Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := evt.Clone()
	clone.Sequence = r.nextSeq
	r.nextSeq++
	r.events = append(r.events, clone)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a snapshot of the retained events in emission order.
func (r *Recorder) Events() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Event, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Clone())
	}
	return out
}
