package events

import "sync"

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers emitted events in memory. It backs the RPC event feed and
// doubles as a capture helper in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// NewRecorder constructs a recorder retaining at most cap events; a
// non-positive cap keeps everything.
func NewRecorder(cap int) *Recorder {
	return &Recorder{cap: cap}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if r.cap > 0 && len(r.events) > r.cap {
		r.events = append([]Event{}, r.events[len(r.events)-r.cap:]...)
	}
}

// Events returns a copy of the buffered events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}
