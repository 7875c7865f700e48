package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	rediscommon "github.com/mosaic/creator/common/redis"
)

const bodyField = "body"

// RedisQueue maps each queue onto a Redis stream with one consumer group.
// Pending entries idle longer than the visibility window are reclaimed.
type RedisQueue struct {
	client     *rediscommon.Client
	group      string
	consumer   string
	visibility time.Duration
}

// NewRedisQueue creates a stream-backed queue
func NewRedisQueue(client *rediscommon.Client, group string, visibility time.Duration) *RedisQueue {
	return &RedisQueue{
		client:     client,
		group:      group,
		consumer:   fmt.Sprintf("consumer_%s", uuid.New().String()[:8]),
		visibility: visibility,
	}
}

// EnsureQueue creates the stream and its consumer group
func (q *RedisQueue) EnsureQueue(ctx context.Context, name string) error {
	if err := q.client.CreateStreamGroup(ctx, name, q.group); err != nil {
		return classify(err)
	}
	return nil
}

// Enqueue appends body to the stream
func (q *RedisQueue) Enqueue(ctx context.Context, name, body string) error {
	if _, err := q.client.AddToStream(ctx, name, map[string]interface{}{bodyField: body}); err != nil {
		return classify(err)
	}
	return nil
}

// Receive reclaims expired deliveries first, then reads new entries
func (q *RedisQueue) Receive(ctx context.Context, name string, max int, block time.Duration) ([]Message, error) {
	claimed, err := q.client.ClaimIdleStreamMessages(ctx, q.group, q.consumer, name, q.visibility, int64(max))
	if err != nil {
		return nil, classify(err)
	}

	out := make([]Message, 0, max)
	for _, m := range claimed {
		out = append(out, toMessage(m, true))
	}
	if len(out) >= max {
		return out, nil
	}

	if block <= 0 {
		block = -1
	}
	fresh, err := q.client.ReadFromStreamGroup(ctx, q.group, q.consumer, name, int64(max-len(out)), block)
	if err != nil {
		return out, classify(err)
	}
	for _, m := range fresh {
		out = append(out, toMessage(m, false))
	}
	return out, nil
}

// Ack acknowledges and deletes the entry
func (q *RedisQueue) Ack(ctx context.Context, name string, msg Message) error {
	if err := q.client.AckStreamMessage(ctx, name, q.group, msg.ID); err != nil {
		return classify(err)
	}
	return nil
}

// Close is a no-op; the redis client is owned by bootstrap
func (q *RedisQueue) Close() error {
	return nil
}

func toMessage(m redis.XMessage, redelivered bool) Message {
	body, _ := m.Values[bodyField].(string)
	return Message{
		ID:          m.ID,
		Body:        body,
		EnqueuedAt:  streamIDTime(m.ID),
		Redelivered: redelivered,
	}
}

// streamIDTime extracts the millisecond timestamp from "<ms>-<seq>"
func streamIDTime(id string) time.Time {
	ms, _, _ := strings.Cut(id, "-")
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func classify(err error) error {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range []string{"OOM", "BUSY ", "LOADING", "MASTERDOWN", "TRYAGAIN"} {
			if strings.HasPrefix(msg, prefix) {
				return fmt.Errorf("%w: %w", ErrThrottled, err)
			}
		}
	}

	// Connection failures, timeouts and any other server error
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}
