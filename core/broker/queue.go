package broker

// queue is a FIFO of pending messages. Capacity 0 means unbounded.
// All access is guarded by the broker mutex.
type queue struct {
	name     string
	capacity int
	pending  []*Message
}

func newQueue(name string, capacity int) *queue {
	if capacity < 0 {
		capacity = 0
	}
	return &queue{name: name, capacity: capacity}
}

// push appends msg at the tail. Returns false if the queue is bounded and full.
func (q *queue) push(msg *Message) bool {
	if q.capacity > 0 && len(q.pending) >= q.capacity {
		return false
	}
	q.pending = append(q.pending, msg)
	return true
}

// pop removes and returns the head, or nil when empty.
func (q *queue) pop() *Message {
	if len(q.pending) == 0 {
		return nil
	}
	msg := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		// Release the backing array once drained
		q.pending = nil
	}
	return msg
}

func (q *queue) len() int {
	return len(q.pending)
}

// snapshot returns copies of pending messages in delivery order.
func (q *queue) snapshot() []Message {
	out := make([]Message, len(q.pending))
	for i, m := range q.pending {
		out[i] = *m
	}
	return out
}
