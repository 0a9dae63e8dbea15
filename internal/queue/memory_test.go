package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cardvault/internal/queue"
)

type MemoryQueueSuite struct {
	contractSuite
}

func TestMemoryQueueSuite(t *testing.T) {
	s := new(MemoryQueueSuite)
	s.newQueue = func(visibility time.Duration) queue.Queue { return queue.NewMemory(visibility) }
	suite.Run(t, s)
}

func TestMemory_ReceiveWakesOnEnqueue(t *testing.T) {
	q := queue.NewMemory(time.Minute)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Enqueue(ctx, []byte("late"))
	}()

	start := time.Now()
	msgs, err := q.Receive(ctx, 1, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMemory_VisibilityWithClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := queue.NewMemory(30*time.Second, queue.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, []byte("x")))

	msgs, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	now = now.Add(29 * time.Second)
	msgs, err = q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	now = now.Add(time.Second)
	msgs, err = q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].ReceiveCount)
	assert.Equal(t, 1, q.Len())
}

func TestNoop(t *testing.T) {
	var q queue.Queue = queue.Noop{}
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, []byte("dropped")))
	msgs, err := q.Receive(ctx, 5, time.Second)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, q.Ack(ctx, "anything"))
}
