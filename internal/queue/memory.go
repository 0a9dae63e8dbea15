package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	id           string
	body         []byte
	receipt      string
	receiveCount int
	visibleAt    time.Time
}

// Memory is an in-process visibility queue for single-replica deployments and tests.
type Memory struct {
	mu         sync.Mutex
	entries    []*memoryEntry
	visibility time.Duration
	now        func() time.Time
	wake       chan struct{}
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now for visibility bookkeeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(visibility time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		visibility: visibility,
		now:        time.Now,
		wake:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Enqueue(_ context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &memoryEntry{
		id:        uuid.NewString(),
		body:      append([]byte(nil), body...),
		visibleAt: m.now(),
	})
	close(m.wake)
	m.wake = make(chan struct{})
	return nil
}

func (m *Memory) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		msgs, wake, nextVisible := m.claim(max)
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if !nextVisible.IsZero() {
			if d := nextVisible.Sub(m.now()); d < remaining {
				remaining = max0(d)
			}
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// claim hides up to max visible messages. It also returns the channel closed
// by the next Enqueue and the earliest future visibility instant.
func (m *Memory) claim(max int) ([]Message, <-chan struct{}, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var (
		out         []Message
		nextVisible time.Time
	)
	for _, e := range m.entries {
		if e.visibleAt.After(now) {
			if nextVisible.IsZero() || e.visibleAt.Before(nextVisible) {
				nextVisible = e.visibleAt
			}
			continue
		}
		if len(out) == max {
			break
		}
		e.receipt = uuid.NewString()
		e.receiveCount++
		e.visibleAt = now.Add(m.visibility)
		out = append(out, Message{
			ID:            e.id,
			Body:          append([]byte(nil), e.body...),
			ReceiptHandle: e.receipt,
			ReceiveCount:  e.receiveCount,
		})
	}
	return out, m.wake, nextVisible
}

func (m *Memory) Ack(_ context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.receipt != "" && e.receipt == receiptHandle {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len reports stored messages, visible or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Ping(context.Context) error { return nil }

func max0(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
