package core

import "sync"

// Handlers is a registration list whose Add returns a detach func.
type Handlers[T any] struct {
	mu   sync.Mutex
	next uint64
	list []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

func (h *Handlers[T]) Add(fn func(T)) (remove func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	h.list = append(h.list, handlerEntry[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, e := range h.list {
				if e.id == id {
					h.list = append(h.list[:i:i], h.list[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit calls every handler in registration order, outside the lock.
func (h *Handlers[T]) Emit(v T) {
	h.mu.Lock()
	snapshot := make([]handlerEntry[T], len(h.list))
	copy(snapshot, h.list)
	h.mu.Unlock()
	for _, e := range snapshot {
		e.fn(v)
	}
}

func (h *Handlers[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.list)
}

func (h *Handlers[T]) Clear() {
	h.mu.Lock()
	h.list = nil
	h.mu.Unlock()
}
