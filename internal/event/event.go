// Package event provides the minimal DOM-style event dispatch used by the
// transaction engine: listeners, capture and bubble phases over an explicit
// path, cancelation of default actions, and propagation stops.
//
// Entities that receive events hold an Emitter by composition and satisfy
// Target by returning it.
package event

// Phase is the dispatch phase an event is currently in.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

func (p Phase) String() string {
	switch p {
	case PhaseCapturing:
		return "capturing"
	case PhaseAtTarget:
		return "at-target"
	case PhaseBubbling:
		return "bubbling"
	default:
		return "none"
	}
}

// Target is anything events can be dispatched to.
type Target interface {
	Emitter() *Emitter
}

// Event is a named notification.
//
// Path lists the ancestors of the target root-first, e.g.
// [database, transaction] for an event targeted at a request. Capture
// listeners run root-first along Path, bubble listeners nearest-first.
// Path may be changed freely until the event is dispatched.
type Event struct {
	Type       string
	Bubbles    bool
	Cancelable bool
	Path       []Target

	canceled bool
	stopped  bool

	target  Target
	current Target
	phase   Phase
}

// New creates an event.
func New(typ string, bubbles, cancelable bool) *Event {
	return &Event{Type: typ, Bubbles: bubbles, Cancelable: cancelable}
}

// PreventDefault marks the event canceled. It has no effect on events that
// are not cancelable.
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.canceled = true
	}
}

// DefaultPrevented reports whether a listener canceled the event.
func (e *Event) DefaultPrevented() bool {
	return e.canceled
}

// StopPropagation prevents the event from reaching any further target.
// Remaining listeners on the current target still run.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Target returns the object the event was dispatched to.
func (e *Event) Target() Target {
	return e.target
}

// CurrentTarget returns the object whose listeners are currently running.
func (e *Event) CurrentTarget() Target {
	return e.current
}

// Phase returns the current dispatch phase.
func (e *Event) Phase() Phase {
	return e.phase
}

// Dispatch delivers ev to target and, depending on phase flags, to each
// entry of ev.Path.
//
// The first listener error aborts the rest of the chain and is returned
// unchanged. The event's phase and current target are reset either way, so
// callers can still inspect DefaultPrevented afterwards.
func Dispatch(target Target, ev *Event) error {
	ev.target = target
	defer func() {
		ev.phase = PhaseNone
		ev.current = nil
	}()

	ev.phase = PhaseCapturing
	for _, t := range ev.Path {
		if ev.stopped {
			return nil
		}
		if err := invoke(t, ev, PhaseCapturing); err != nil {
			return err
		}
	}

	if ev.stopped {
		return nil
	}
	ev.phase = PhaseAtTarget
	if err := invoke(target, ev, PhaseAtTarget); err != nil {
		return err
	}

	if !ev.Bubbles {
		return nil
	}

	ev.phase = PhaseBubbling
	for i := len(ev.Path) - 1; i >= 0; i-- {
		if ev.stopped {
			return nil
		}
		if err := invoke(ev.Path[i], ev, PhaseBubbling); err != nil {
			return err
		}
	}

	return nil
}

func invoke(t Target, ev *Event, phase Phase) error {
	if t == nil {
		return nil
	}
	em := t.Emitter()
	if em == nil {
		return nil
	}

	ev.current = t
	for _, l := range em.snapshot(ev.Type) {
		if l.removed {
			continue
		}
		switch phase {
		case PhaseCapturing:
			if !l.capture {
				continue
			}
		case PhaseBubbling:
			if l.capture {
				continue
			}
		}
		if err := l.fn(ev); err != nil {
			return err
		}
	}
	return nil
}
