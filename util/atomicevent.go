package util

import (
	"sync"
)

// AtomicEvent holds a single, latest value and provides non-blocking
// updates. Only the most recent value is retained: the acquisition
// loop publishes every reading here without ever waiting for slow
// consumers such as the TUI viewer.
type AtomicEvent[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

func NewAtomicEvent[T any]() *AtomicEvent[T] {
	return &AtomicEvent[T]{
		notify: make(chan struct{}, 1),
	}
}

// Send replaces the stored value with the latest one. It never blocks;
// if a notification is already pending, none is added.
func (ae *AtomicEvent[T]) Send(value T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.value = value

	select {
	case ae.notify <- struct{}{}:
	default:
		// A notification is already pending.
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns the most recently sent value.
func (ae *AtomicEvent[T]) Value() T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.value
}
