package store

import "sync"

// Hub fans snapshots out to watch subscribers, keyed by query. Delivery is
// latest-wins: a slow subscriber sees the newest snapshot, not every
// intermediate one, matching the eventual-consistency contract of the
// original backend.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[string]map[int]chan T
	next int
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[string]map[int]chan T)}
}

// Subscribe registers a watcher for key and returns its channel plus a
// cancel func. The channel has capacity one; store implementations seed it
// with the current snapshot before handing it to the caller.
func (h *Hub[T]) Subscribe(key string) (chan T, CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[key] == nil {
		h.subs[key] = make(map[int]chan T)
	}
	id := h.next
	h.next++
	ch := make(chan T, 1)
	h.subs[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[key][id]; ok {
				delete(h.subs[key], id)
				if len(h.subs[key]) == 0 {
					delete(h.subs, key)
				}
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber of key, replacing any
// undelivered previous snapshot.
func (h *Hub[T]) Publish(key string, snapshot T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[key] {
		Offer(ch, snapshot)
	}
}

// Offer performs a latest-wins send: if the buffer is full the stale
// snapshot is dropped in favour of the new one.
func Offer[T any](ch chan T, snapshot T) {
	select {
	case ch <- snapshot:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
