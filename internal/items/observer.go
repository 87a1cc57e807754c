package items

import "sync"

// subscribers is an ordered set of callbacks for one notification kind.
type subscribers[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// add registers fn and returns a func that removes it. The returned func is
// safe to call more than once.
func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, subscriber[T]{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.entries {
			if e.id == id {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				return
			}
		}
	}
}

// notify calls every callback in subscription order. Callbacks run without
// the lock held, so they may subscribe, unsubscribe or read controller state.
func (s *subscribers[T]) notify(v T) {
	s.mu.Lock()
	fns := make([]func(T), len(s.entries))
	for i, e := range s.entries {
		fns[i] = e.fn
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
