package bridge

import "sync"

// subscription serializes delivery to one callback against its removal.
type subscription struct {
	mu     sync.Mutex
	fn     func(string)
	closed bool
}

func (s *subscription) deliver(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(raw)
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// hub fans telemetry out to subscribers in registration order.
type hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
	order  []uint64
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscription)}
}

// subscribe registers fn. The returned func removes it and waits for any
// in-flight delivery to fn to return. It must not be called from inside fn.
func (h *hub) subscribe(fn func(string)) func() {
	sub := &subscription{fn: fn}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)
					break
				}
			}
			h.mu.Unlock()
			sub.close()
		})
	}
}

func (h *hub) publish(raw string) {
	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.order))
	for _, id := range h.order {
		targets = append(targets, h.subs[id])
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(raw)
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
