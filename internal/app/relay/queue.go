package relay

import "github.com/dkeye/Televisit/internal/core"

// pendingQueue is a byte-bounded FIFO of frames waiting for an absent peer.
// Not safe for concurrent use; the hub lock guards it.
type pendingQueue struct {
	maxBytes int
	curBytes int
	frames   []core.Frame
}

func newPendingQueue(maxBytes int) *pendingQueue {
	return &pendingQueue{maxBytes: maxBytes}
}

// Enqueue appends f if it fits within the byte budget.
func (q *pendingQueue) Enqueue(f core.Frame) bool {
	if len(f) > q.maxBytes || q.curBytes+len(f) > q.maxBytes {
		return false
	}
	q.frames = append(q.frames, f)
	q.curBytes += len(f)
	return true
}

// Drain returns every queued frame in order and empties the queue.
func (q *pendingQueue) Drain() []core.Frame {
	out := q.frames
	q.frames = nil
	q.curBytes = 0
	return out
}

func (q *pendingQueue) Len() int { return len(q.frames) }
