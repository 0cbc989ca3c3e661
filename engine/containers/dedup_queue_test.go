package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupQueueFIFOOrder(t *testing.T) {
	dq := NewDedupQueue[int]()
	assert.True(t, dq.Enqueue(1))
	assert.True(t, dq.Enqueue(2))
	assert.True(t, dq.Enqueue(3))
	assert.Equal(t, 3, dq.Len())

	for _, want := range []int{1, 2, 3} {
		got, ok := dq.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := dq.Dequeue()
	assert.False(t, ok)
}

func TestDedupQueueDropsDuplicates(t *testing.T) {
	dq := NewDedupQueue[string]()
	assert.True(t, dq.Enqueue("a"))
	assert.False(t, dq.Enqueue("a"))
	assert.True(t, dq.Enqueue("b"))
	assert.False(t, dq.Enqueue("a"), "duplicates stay no-ops, not reorders")
	assert.Equal(t, 2, dq.Len())

	got, _ := dq.Dequeue()
	assert.Equal(t, "a", got)

	// Once dequeued the value may be queued again.
	assert.True(t, dq.Enqueue("a"))
	got, _ = dq.Dequeue()
	assert.Equal(t, "b", got)
	got, _ = dq.Dequeue()
	assert.Equal(t, "a", got)
}

func TestDedupQueueRemove(t *testing.T) {
	dq := NewDedupQueue[int]()
	dq.Enqueue(1)
	dq.Enqueue(2)
	dq.Enqueue(3)

	assert.True(t, dq.Remove(2))
	assert.False(t, dq.Remove(2))
	assert.False(t, dq.Contains(2))
	assert.Equal(t, 2, dq.Len())

	got, _ := dq.Dequeue()
	assert.Equal(t, 1, got)
	got, _ = dq.Dequeue()
	assert.Equal(t, 3, got)
}

func TestDedupQueueContains(t *testing.T) {
	dq := NewDedupQueue[int]()
	assert.False(t, dq.Contains(7))
	dq.Enqueue(7)
	assert.True(t, dq.Contains(7))
	dq.Dequeue()
	assert.False(t, dq.Contains(7))
}
