package backend

import "sync"

// eventHub fans session events out to subscribers.
type eventHub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(SessionEvent)
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]func(SessionEvent))}
}

func (h *eventHub) subscribe(fn func(SessionEvent)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// emit delivers the event to every subscriber on the calling goroutine.
func (h *eventHub) emit(ev SessionEvent) {
	h.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
