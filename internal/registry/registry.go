// Package registry implements a register-or-queue handoff between a producer
// and at most one consumer.
//
// Until a consumer attaches, published values wait in a single slot and a
// newer value replaces an older one. Attaching delivers the waiting value,
// and from then on every publish goes straight to the consumer. A consumer
// that declines a value, because it is going away, puts it back in the slot.
package registry

import "sync"

type Registry[T any] struct {
	mu         sync.Mutex
	consumer   func(T) bool
	pending    T
	hasPending bool

	// deliverMu serializes consumer calls without holding mu, so a
	// consumer may call Detach, Attached or Pending from its callback.
	// Publishing from inside the callback deadlocks.
	deliverMu sync.Mutex
}

func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Publish hands v to the consumer and reports whether it was taken. With no
// consumer attached, or when the consumer declines, v waits in the pending
// slot and Publish reports false.
func (r *Registry[T]) Publish(v T) bool {
	r.mu.Lock()
	consumer := r.consumer
	if consumer == nil {
		r.pending = v
		r.hasPending = true
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	if consumer(v) {
		return true
	}
	r.requeue(v)
	return false
}

// Attach installs fn as the consumer, replacing any previous one. A pending
// value is delivered to fn before Attach returns. fn reports whether it took
// the value.
func (r *Registry[T]) Attach(fn func(T) bool) {
	if fn == nil {
		r.Detach()
		return
	}

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	r.consumer = fn
	v, ok := r.pending, r.hasPending
	var zero T
	r.pending, r.hasPending = zero, false
	r.mu.Unlock()

	if ok && !fn(v) {
		r.requeue(v)
	}
}

// requeue puts a declined value back unless a newer one arrived meanwhile.
func (r *Registry[T]) requeue(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPending {
		r.pending = v
		r.hasPending = true
	}
}

// Detach removes the consumer. Later publishes queue again.
func (r *Registry[T]) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumer = nil
}

// Attached reports whether a consumer is installed.
func (r *Registry[T]) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumer != nil
}

// Pending returns the queued value without consuming it.
func (r *Registry[T]) Pending() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.hasPending
}
