package trace

import "sync"

// Event is one observed event delivery.
type Event struct {
	Seq    int64  `json:"seq"`
	Tick   int64  `json:"tick"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Label returns "<target>:<type>", the form used by ordering assertions.
func (e Event) Label() string {
	return e.Target + ":" + e.Type
}

// Sequencer hands out increasing sequence numbers. Clock implements it.
type Sequencer interface {
	Next() int64
}

// Recorder accumulates events in the order they are observed.
type Recorder struct {
	mu     sync.Mutex
	clock  Sequencer
	events []Event
}

// NewRecorder creates an empty recorder with its own clock.
func NewRecorder() *Recorder {
	return NewRecorderWithClock(NewClock())
}

// NewRecorderWithClock creates an empty recorder stamping events from c.
func NewRecorderWithClock(c Sequencer) *Recorder {
	return &Recorder{clock: c}
}

// Record stamps e with the next sequence number and appends it.
func (r *Recorder) Record(e Event) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Seq = r.clock.Next()
	r.events = append(r.events, e)
	return e
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Labels returns the label of every recorded event in order.
func (r *Recorder) Labels() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Label()
	}
	return out
}
