package device

import "github.com/srg/smartgadget/internal/ringchan"

// NotificationQueue is a bounded buffer with overwrite-oldest semantics.
//
// Producers (BLE stack callbacks) never block: when the buffer is full the
// oldest frame is discarded and counted. A discarded download frame shows up
// downstream as a sequence gap, which is how lost radio frames surface too.
//
// Readers drain through C().
type NotificationQueue struct {
	ring *ringchan.Channel[Notification]
}

// NewNotificationQueue creates a queue holding at most capacity frames.
func NewNotificationQueue(capacity int) *NotificationQueue {
	if capacity <= 0 {
		panic("notification queue: capacity must be > 0")
	}
	return &NotificationQueue{ring: ringchan.New[Notification](capacity)}
}

// C returns the receive side of the queue.
func (q *NotificationQueue) C() <-chan Notification {
	return q.ring.C()
}

// Push enqueues n, discarding the oldest frame when full.
// Returns true if a frame was discarded.
func (q *NotificationQueue) Push(n Notification) bool {
	return q.ring.Send(n)
}

// Handler adapts the queue to a NotificationHandler.
// Frame data is copied since stacks may reuse their buffers.
func (q *NotificationQueue) Handler() NotificationHandler {
	return func(n Notification) {
		data := make([]byte, len(n.Data))
		copy(data, n.Data)
		n.Data = data
		q.Push(n)
	}
}

// Len returns the number of buffered frames.
func (q *NotificationQueue) Len() int {
	return q.ring.Len()
}

// Dropped returns how many frames were discarded so far.
func (q *NotificationQueue) Dropped() uint64 {
	return uint64(q.ring.Stats().Dropped)
}

// Written returns how many frames were accepted so far.
func (q *NotificationQueue) Written() uint64 {
	return uint64(q.ring.Stats().Sent)
}

// Drain discards all buffered frames and returns how many were removed.
func (q *NotificationQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ring.C():
			n++
		default:
			return n
		}
	}
}
