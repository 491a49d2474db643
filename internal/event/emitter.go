package event

// Listener handles an event. A non-nil error aborts the dispatch.
type Listener func(*Event) error

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listener struct {
	id      ListenerID
	typ     string
	fn      Listener
	capture bool
	handler bool
	removed bool
}

// ListenerOption configures AddListener.
type ListenerOption func(*listener)

// WithCapture registers the listener for the capture phase instead of the
// at-target and bubble phases.
func WithCapture() ListenerOption {
	return func(l *listener) {
		l.capture = true
	}
}

// Emitter stores the listeners of one target. The zero value is ready to use.
//
// Listeners run in registration order. A listener added while an event is
// being delivered to this emitter does not see that event.
type Emitter struct {
	nextID    ListenerID
	listeners map[string][]*listener
}

// AddListener registers fn for events of type typ.
func (e *Emitter) AddListener(typ string, fn Listener, opts ...ListenerOption) ListenerID {
	l := &listener{typ: typ, fn: fn}
	for _, opt := range opts {
		opt(l)
	}
	return e.add(l)
}

func (e *Emitter) add(l *listener) ListenerID {
	if e.listeners == nil {
		e.listeners = make(map[string][]*listener)
	}
	e.nextID++
	l.id = e.nextID
	e.listeners[l.typ] = append(e.listeners[l.typ], l)
	return l.id
}

// RemoveListener unregisters a listener. It reports whether one was removed.
func (e *Emitter) RemoveListener(id ListenerID) bool {
	for typ, ls := range e.listeners {
		for i, l := range ls {
			if l.id != id {
				continue
			}
			l.removed = true
			e.listeners[typ] = append(ls[:i:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

// SetHandler sets the single handler slot for typ, the equivalent of an
// on<type> attribute. The slot keeps the position of its first assignment;
// passing nil clears it.
func (e *Emitter) SetHandler(typ string, fn Listener) {
	for _, l := range e.listeners[typ] {
		if !l.handler {
			continue
		}
		if fn == nil {
			e.RemoveListener(l.id)
			return
		}
		l.fn = fn
		return
	}
	if fn == nil {
		return
	}
	e.add(&listener{typ: typ, fn: fn, handler: true})
}

// HasListeners reports whether any listener is registered for typ.
func (e *Emitter) HasListeners(typ string) bool {
	return len(e.listeners[typ]) > 0
}

// snapshot returns a copy of the listener list so registrations made during
// delivery do not affect it. Removal is still observed through l.removed.
func (e *Emitter) snapshot(typ string) []*listener {
	ls := e.listeners[typ]
	if len(ls) == 0 {
		return nil
	}
	out := make([]*listener, len(ls))
	copy(out, ls)
	return out
}
