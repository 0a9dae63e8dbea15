package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresPollInterval = 500 * time.Millisecond

// Postgres is a visibility queue on the queue_messages table. Concurrent
// receivers never claim the same row thanks to FOR UPDATE SKIP LOCKED.
type Postgres struct {
	pool       *pgxpool.Pool
	name       string
	visibility time.Duration
}

func NewPostgres(pool *pgxpool.Pool, name string, visibility time.Duration) *Postgres {
	return &Postgres{pool: pool, name: name, visibility: visibility}
}

func (q *Postgres) Enqueue(ctx context.Context, body []byte) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO queue_messages (id, queue, body, visible_at)
		VALUES ($1, $2, $3, now())`,
		uuid.New(), q.name, body,
	)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (q *Postgres) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		msgs, err := q.claim(ctx, max)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(remaining, postgresPollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Postgres) claim(ctx context.Context, max int) ([]Message, error) {
	rows, err := q.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM queue_messages
			WHERE queue = $1 AND visible_at <= now()
			ORDER BY visible_at, created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET receipt = gen_random_uuid(),
		    receive_count = m.receive_count + 1,
		    visible_at = now() + make_interval(secs => $3)
		FROM due
		WHERE m.id = due.id
		RETURNING m.id, m.body, m.receipt, m.receive_count`,
		q.name, max, q.visibility.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			msgID, receipt uuid.UUID
			body           []byte
			count          int
		)
		if err := rows.Scan(&msgID, &body, &receipt, &count); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, Message{
			ID:            msgID.String(),
			Body:          body,
			ReceiptHandle: receipt.String(),
			ReceiveCount:  count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	return msgs, nil
}

func (q *Postgres) Ack(ctx context.Context, receiptHandle string) error {
	receipt, err := uuid.Parse(receiptHandle)
	if err != nil {
		return nil
	}
	if _, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE receipt = $1`, receipt); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (q *Postgres) Ping(ctx context.Context) error {
	return q.pool.Ping(ctx)
}
