package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPollInterval = 250 * time.Millisecond

// claimScript moves up to ARGV[3] due members of the visibility set forward by
// the timeout and stamps each with a fresh receipt from ARGV[4..].
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local out = {}
for i, id in ipairs(ids) do
  local receipt = ARGV[3 + i]
  redis.call('ZADD', KEYS[1], ARGV[2], id)
  redis.call('HSET', KEYS[3], id, receipt)
  local n = redis.call('HINCRBY', KEYS[4], id, 1)
  local body = redis.call('HGET', KEYS[2], id)
  table.insert(out, {id, body or '', receipt, n})
end
return out
`)

// ackScript deletes a message only while the receipt still matches.
var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

// Redis is a visibility queue on a sorted set scored by visible-at milliseconds.
type Redis struct {
	client     *redis.Client
	keys       []string
	visibility time.Duration
}

func NewRedis(client *redis.Client, name string, visibility time.Duration) *Redis {
	prefix := "cardvault:queue:" + name
	return &Redis{
		client: client,
		keys: []string{
			prefix + ":visible",
			prefix + ":bodies",
			prefix + ":receipts",
			prefix + ":counts",
		},
		visibility: visibility,
	}
}

func (q *Redis) Enqueue(ctx context.Context, body []byte) error {
	msgID := uuid.NewString()
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.keys[1], msgID, body)
		p.ZAdd(ctx, q.keys[0], redis.Z{Score: float64(time.Now().UnixMilli()), Member: msgID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (q *Redis) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
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
		timer := time.NewTimer(min(remaining, redisPollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Redis) claim(ctx context.Context, max int) ([]Message, error) {
	now := time.Now()
	args := []any{now.UnixMilli(), now.Add(q.visibility).UnixMilli(), max}
	for i := 0; i < max; i++ {
		args = append(args, uuid.NewString())
	}

	res, err := claimScript.Run(ctx, q.client, q.keys, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	msgs := make([]Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]any)
		if !ok || len(fields) != 4 {
			return nil, fmt.Errorf("claim messages: unexpected reply %v", row)
		}
		msgID, _ := fields[0].(string)
		body, _ := fields[1].(string)
		receipt, _ := fields[2].(string)
		count, _ := fields[3].(int64)
		msgs = append(msgs, Message{
			ID:            msgID,
			Body:          []byte(body),
			ReceiptHandle: msgID + "." + receipt,
			ReceiveCount:  int(count),
		})
	}
	return msgs, nil
}

func (q *Redis) Ack(ctx context.Context, receiptHandle string) error {
	msgID, receipt, ok := strings.Cut(receiptHandle, ".")
	if !ok {
		return nil
	}
	if err := ackScript.Run(ctx, q.client, q.keys, msgID, receipt).Err(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (q *Redis) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
