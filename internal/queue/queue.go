// Package queue is the at-least-once work queue feeding the background poller.
//
// Semantics shared by every backend:
//   - Receive hides returned messages for the visibility timeout
//   - a message not acked before the timeout is redelivered with a new receipt handle
//   - Ack with a stale or unknown receipt handle is a no-op
package queue

import (
	"context"
	"time"
)

// Message is one delivery of a queued body.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
	ReceiveCount  int
}

// Queue is implemented by Noop, Memory, Redis and Postgres.
type Queue interface {
	Enqueue(ctx context.Context, body []byte) error
	// Receive waits up to wait for at least one visible message and returns at most max.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Ack(ctx context.Context, receiptHandle string) error
}

// Noop is used when EVENT_QUEUE_PROVIDER=off: enqueues are dropped and
// Receive always comes back empty.
type Noop struct{}

func (Noop) Enqueue(context.Context, []byte) error { return nil }

func (Noop) Receive(context.Context, int, time.Duration) ([]Message, error) { return nil, nil }

func (Noop) Ack(context.Context, string) error { return nil }

func (Noop) Ping(context.Context) error { return nil }
