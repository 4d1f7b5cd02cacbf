package memory

import (
	"context"
	"testing"
	"time"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	assert.Equal(t, 2, q.Len())

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestQueue_FullQueueFailsFast(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a"))
	err := q.Enqueue(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestQueue_DequeueHonoursContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
