package platform

import "sync"

// listeners is a set of callbacks that can be removed individually
type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	items  map[int]T
}

func (l *listeners[T]) add(callback T) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.items == nil {
		l.items = make(map[int]T)
	}
	id := l.nextID
	l.nextID++
	l.items[id] = callback

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.items, id)
			l.mu.Unlock()
		})
	}
}

// snapshot returns the callbacks in registration order
func (l *listeners[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]T, 0, len(l.items))
	for id := 0; id < l.nextID; id++ {
		if cb, ok := l.items[id]; ok {
			out = append(out, cb)
		}
	}
	return out
}

func (l *listeners[T]) clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

func (l *listeners[T]) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
