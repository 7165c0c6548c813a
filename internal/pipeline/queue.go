package pipeline

import "sync"

// Queue is a FIFO of participant ids shared by the workers of a run.
type Queue struct {
	mu    sync.Mutex
	items []string
}

// NewQueue returns a queue holding ids in order.
func NewQueue(ids []string) *Queue {
	return &Queue{items: append([]string(nil), ids...)}
}

// Pop removes and returns the first id. ok is false when the queue is empty.
func (q *Queue) Pop() (id string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	id = q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return id, true
}

// Len returns the number of ids still queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
