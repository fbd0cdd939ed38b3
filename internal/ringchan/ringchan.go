// Package ringchan provides a bounded channel whose producers never block:
// when the buffer is full the oldest queued value is discarded.
package ringchan

import "sync/atomic"

// Channel wraps a buffered channel with drop-oldest sends. Consumers read
// from C like any other channel.
type Channel[T any] struct {
	ch chan T

	sent    atomic.Int64
	dropped atomic.Int64
}

// New creates a Channel holding at most capacity values.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side.
func (c *Channel[T]) C() <-chan T {
	return c.ch
}

// Send queues v, evicting the oldest value when full. It reports whether a
// value was evicted. Concurrent senders may both evict; neither blocks.
func (c *Channel[T]) Send(v T) bool {
	evicted := false
	for {
		select {
		case c.ch <- v:
			c.sent.Add(1)
			return evicted
		default:
		}
		select {
		case <-c.ch:
			c.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

// Len returns the number of queued values.
func (c *Channel[T]) Len() int { return len(c.ch) }

// Close closes the receive side. Send panics afterwards.
func (c *Channel[T]) Close() { close(c.ch) }

// Stats is a snapshot of the send counters.
type Stats struct {
	Sent    int64
	Dropped int64
}

func (c *Channel[T]) Stats() Stats {
	return Stats{Sent: c.sent.Load(), Dropped: c.dropped.Load()}
}
