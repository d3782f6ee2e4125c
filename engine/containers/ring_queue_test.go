package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	assert.True(t, rq.IsEmpty())

	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for want := 1; want <= 3; want++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueWrapAround(t *testing.T) {
	rq := NewRingQueue[string](2)
	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	_, _ = rq.Dequeue()
	require.NoError(t, rq.Enqueue("c"))

	v, _ := rq.Dequeue()
	assert.Equal(t, "b", v)
	v, _ = rq.Dequeue()
	assert.Equal(t, "c", v)
	assert.Equal(t, 0, rq.Len())
}

func TestRingQueuePushEvictsOldest(t *testing.T) {
	rq := NewRingQueue[int](2)
	assert.False(t, rq.Push(1))
	assert.False(t, rq.Push(2))
	assert.True(t, rq.Push(3))

	v, _ := rq.Dequeue()
	assert.Equal(t, 2, v)
	v, _ = rq.Dequeue()
	assert.Equal(t, 3, v)
}
