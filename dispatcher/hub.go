package dispatcher

import (
	"sync"

	"github.com/blockberries/facetroute/types"
)

// hub fans events out to Watch subscribers. A subscriber whose buffer
// is full is dropped and its channel closed; it can resynchronize
// from State.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	next   uint64
	size   int
	closed bool
}

type subscriber struct {
	ch chan types.Event
	// done is closed together with ch so the Watch goroutine exits
	// however the subscription ends.
	done chan struct{}
}

func (s *subscriber) end() {
	close(s.ch)
	close(s.done)
}

func newHub(size int) *hub {
	return &hub{subs: make(map[uint64]*subscriber), size: size}
}

// subscribe returns false once the hub is closed.
func (h *hub) subscribe() (uint64, *subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, false
	}
	h.next++
	s := &subscriber{ch: make(chan types.Event, h.size), done: make(chan struct{})}
	h.subs[h.next] = s
	return h.next, s, true
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		s.end()
	}
}

// publish never blocks. It returns how many subscribers were dropped.
func (h *hub) publish(ev types.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for id, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			delete(h.subs, id)
			s.end()
			dropped++
		}
	}
	return dropped
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		s.end()
	}
}
