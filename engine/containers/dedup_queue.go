package containers

// DedupQueue is a FIFO queue in which every value appears at most once.
// Enqueuing a value that is already queued is a no-op, so drain order is
// deterministic regardless of how many times callers re-request a value.
type DedupQueue[T comparable] struct {
	items  []T
	queued map[T]struct{}
}

// Create a new DedupQueue
func NewDedupQueue[T comparable]() *DedupQueue[T] {
	return &DedupQueue[T]{
		queued: make(map[T]struct{}),
	}
}

// Enqueue adds a value to the back of the queue. Returns false if the value
// was already queued and nothing changed.
func (dq *DedupQueue[T]) Enqueue(value T) bool {
	if _, ok := dq.queued[value]; ok {
		return false
	}
	dq.items = append(dq.items, value)
	dq.queued[value] = struct{}{}
	return true
}

// Dequeue removes and returns the front value of the queue.
func (dq *DedupQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(dq.items) == 0 {
		return zero, false
	}
	value := dq.items[0]
	dq.items = dq.items[1:]
	delete(dq.queued, value)
	return value, true
}

// Remove drops a value from anywhere in the queue, preserving the order of
// the remaining values. Returns false if the value was not queued.
func (dq *DedupQueue[T]) Remove(value T) bool {
	if _, ok := dq.queued[value]; !ok {
		return false
	}
	delete(dq.queued, value)
	for i, v := range dq.items {
		if v == value {
			dq.items = append(dq.items[:i], dq.items[i+1:]...)
			break
		}
	}
	return true
}

// Contains checks whether a value is currently queued.
func (dq *DedupQueue[T]) Contains(value T) bool {
	_, ok := dq.queued[value]
	return ok
}

// Len returns the number of queued values.
func (dq *DedupQueue[T]) Len() int {
	return len(dq.items)
}
