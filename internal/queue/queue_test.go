package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New[int](3)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, q.Len())
}

func TestEnqueue_DropsOldestOnOverflow(t *testing.T) {
	q := New[int](2)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3) // should drop 1

	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(3), stats.Received)
}

func TestTryEnqueue_RejectsNewestOnOverflow(t *testing.T) {
	q := New[int](2)
	assert.True(t, q.TryEnqueue(1))
	assert.True(t, q.TryEnqueue(2))
	assert.False(t, q.TryEnqueue(3)) // full: the incoming element is discarded

	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestDequeue_EmptyReturnsFalse(t *testing.T) {
	q := New[string](4)
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestDequeueBatch_CapsAtRequestedMax(t *testing.T) {
	q := New[int](10)
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	batch := q.DequeueBatch(3)
	assert.Equal(t, []int{0, 1, 2}, batch)
	assert.Equal(t, 2, q.Len())
}

func TestDequeueBatch_FewerItemsThanMax(t *testing.T) {
	q := New[int](10)
	q.Enqueue(7)
	batch := q.DequeueBatch(5)
	assert.Equal(t, []int{7}, batch)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_NeverExceedsCapacity(t *testing.T) {
	q := New[int](5)
	for i := 0; i < 100; i++ {
		q.Enqueue(i)
		assert.LessOrEqual(t, q.Len(), 5)
	}
}
