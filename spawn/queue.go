package spawn

// outboundQueue buffers messages accepted while no transport is open.
// Not safe for concurrent use; Client guards it with its mutex.
type outboundQueue struct {
	items    []Message
	capacity int // 0 = unbounded
	dropped  uint64
}

func newOutboundQueue(capacity int) *outboundQueue {
	return &outboundQueue{capacity: capacity}
}

// push appends m, evicting the oldest entry when full.
// It reports whether something was evicted.
func (q *outboundQueue) push(m Message) bool {
	evicted := false
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.items[0] = Message{}
		q.items = q.items[1:]
		q.dropped++
		evicted = true
	}
	q.items = append(q.items, m)
	return evicted
}

// prepend puts ms in front of the queue in their current order. If the result
// exceeds capacity the oldest entries are dropped.
func (q *outboundQueue) prepend(ms []Message) {
	if len(ms) == 0 {
		return
	}
	merged := make([]Message, 0, len(ms)+len(q.items))
	merged = append(merged, ms...)
	merged = append(merged, q.items...)
	if q.capacity > 0 && len(merged) > q.capacity {
		over := len(merged) - q.capacity
		q.dropped += uint64(over)
		merged = merged[over:]
	}
	q.items = merged
}

// drain removes and returns everything in FIFO order.
func (q *outboundQueue) drain() []Message {
	items := q.items
	q.items = nil
	return items
}

func (q *outboundQueue) len() int { return len(q.items) }
