// Package state provides an observable value that notifies subscribers on change.
package state

import "sync"

// Writable holds a value of type T and notifies subscribers whenever it is
// replaced. Subscribers run synchronously in registration order and see
// values in the order they were written. A subscriber must not write to the
// same Writable.
type Writable[T any] struct {
	// notifyMu serializes deliveries; mu guards the fields below.
	notifyMu sync.Mutex
	mu       sync.Mutex
	value  T
	nextID int
	subs   map[int]func(T)
	order  []int
}

// NewWritable creates a Writable holding initial.
func NewWritable[T any](initial T) *Writable[T] {
	return &Writable[T]{value: initial, subs: make(map[int]func(T))}
}

// Get returns the current value.
func (w *Writable[T]) Get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// Set replaces the value and notifies subscribers.
func (w *Writable[T]) Set(v T) {
	w.Update(func(T) T { return v })
}

// Update replaces the value with fn(current) and notifies subscribers.
func (w *Writable[T]) Update(fn func(T) T) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	w.value = fn(w.value)
	v := w.value
	subs := w.snapshot()
	w.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe registers fn, calls it immediately with the current value and
// returns a function that removes the subscription.
func (w *Writable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.order = append(w.order, id)
	v := w.value
	w.mu.Unlock()

	fn(v)

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subs, id)
			for i, oid := range w.order {
				if oid == id {
					w.order = append(w.order[:i], w.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (w *Writable[T]) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

func (w *Writable[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.subs[id])
	}
	return out
}
