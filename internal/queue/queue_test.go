package queue_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"cardvault/internal/queue"
)

// contractSuite runs the shared delivery semantics against a backend.
// newQueue must return an empty queue with the given visibility timeout.
type contractSuite struct {
	suite.Suite
	newQueue func(visibility time.Duration) queue.Queue
	ctx      context.Context
}

func (s *contractSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *contractSuite) TestReceiveAndAck() {
	q := s.newQueue(time.Minute)
	s.Require().NoError(q.Enqueue(s.ctx, []byte(`{"ruv":"A"}`)))

	msgs, err := q.Receive(s.ctx, 5, time.Second)
	s.Require().NoError(err)
	s.Require().Len(msgs, 1)
	s.Equal(`{"ruv":"A"}`, string(msgs[0].Body))
	s.Equal(1, msgs[0].ReceiveCount)
	s.NotEmpty(msgs[0].ReceiptHandle)

	s.Require().NoError(q.Ack(s.ctx, msgs[0].ReceiptHandle))

	msgs, err = q.Receive(s.ctx, 5, 0)
	s.Require().NoError(err)
	s.Empty(msgs)
}

func (s *contractSuite) TestInFlightMessagesAreHidden() {
	q := s.newQueue(time.Minute)
	s.Require().NoError(q.Enqueue(s.ctx, []byte("one")))

	first, err := q.Receive(s.ctx, 5, time.Second)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	second, err := q.Receive(s.ctx, 5, 0)
	s.Require().NoError(err)
	s.Empty(second)
}

func (s *contractSuite) TestUnackedMessageIsRedelivered() {
	q := s.newQueue(time.Second)
	s.Require().NoError(q.Enqueue(s.ctx, []byte("retry")))

	first, err := q.Receive(s.ctx, 1, time.Second)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	second, err := q.Receive(s.ctx, 1, 5*time.Second)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.Equal(first[0].ID, second[0].ID)
	s.Equal(2, second[0].ReceiveCount)
	s.NotEqual(first[0].ReceiptHandle, second[0].ReceiptHandle)

	s.Run("stale receipt does not delete", func() {
		s.Require().NoError(q.Ack(s.ctx, first[0].ReceiptHandle))

		third, err := q.Receive(s.ctx, 1, 5*time.Second)
		s.Require().NoError(err)
		s.Require().Len(third, 1)
		s.Equal(first[0].ID, third[0].ID)

		s.Require().NoError(q.Ack(s.ctx, third[0].ReceiptHandle))
		msgs, err := q.Receive(s.ctx, 1, 1500*time.Millisecond)
		s.Require().NoError(err)
		s.Empty(msgs)
	})
}

func (s *contractSuite) TestReceiveRespectsMax() {
	q := s.newQueue(time.Minute)
	for i := 0; i < 7; i++ {
		s.Require().NoError(q.Enqueue(s.ctx, []byte{byte('a' + i)}))
	}
	msgs, err := q.Receive(s.ctx, 5, time.Second)
	s.Require().NoError(err)
	s.Len(msgs, 5)

	rest, err := q.Receive(s.ctx, 5, time.Second)
	s.Require().NoError(err)
	s.Len(rest, 2)
}

func (s *contractSuite) TestReceiveHonoursContextCancel() {
	q := s.newQueue(time.Minute)
	ctx, cancel := context.WithTimeout(s.ctx, 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	msgs, err := q.Receive(ctx, 5, 10*time.Second)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Empty(msgs)
	s.Less(time.Since(start), 5*time.Second)
}

func (s *contractSuite) TestUnknownReceiptIsNoop() {
	q := s.newQueue(time.Minute)
	s.NoError(q.Ack(s.ctx, "not-a-receipt"))
}
