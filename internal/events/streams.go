package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis Streams transport. Consumer groups give at-least-once delivery:
// a message stays pending until acked, and crashed consumers' pending
// messages are reclaimed by Pending.

const bodyField = "body"

type StreamPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewStreamPublisher(client *redis.Client, log *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, log: log}
}

// Add appends a JSON-encoded payload to a stream and returns the message id.
func (p *StreamPublisher) Add(ctx context.Context, stream string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{bodyField: string(data)},
	}).Result()
}

type StreamConsumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	log      *zap.Logger
}

func NewStreamConsumer(client *redis.Client, stream, group, consumer string, log *zap.Logger) *StreamConsumer {
	return &StreamConsumer{client: client, stream: stream, group: group, consumer: consumer, log: log}
}

// EnsureGroup creates the consumer group, tolerating a group that
// already exists.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Read blocks for up to block waiting for new messages. A timeout with
// nothing to read returns an empty batch, not an error.
func (c *StreamConsumer) Read(ctx context.Context, count int64, block time.Duration) ([]RawMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []RawMessage
	for _, s := range streams {
		for _, m := range s.Messages {
			msgs = append(msgs, rawMessage(m, 1))
		}
	}
	return msgs, nil
}

// Pending reclaims messages another consumer read but never acked,
// once they have been idle for at least minIdle. Deliveries carries the
// transport's delivery count so the caller can dead-letter poison
// messages.
func (c *StreamConsumer) Pending(ctx context.Context, minIdle time.Duration, count int64) ([]RawMessage, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	deliveries := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var msgs []RawMessage
	for _, m := range claimed {
		msgs = append(msgs, rawMessage(m, deliveries[m.ID]))
	}
	return msgs, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.client.XAck(ctx, c.stream, c.group, ids...).Err()
}

// DeadLetter moves a poison message to the dead-letter stream and acks
// the original so it stops being redelivered.
func (c *StreamConsumer) DeadLetter(ctx context.Context, deadStream string, msg RawMessage) error {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadStream,
		Values: map[string]any{
			bodyField:   string(msg.Body),
			"origin":    c.stream,
			"origin_id": msg.ID,
		},
	}).Err()
	if err != nil {
		return err
	}
	c.log.Warn("message dead-lettered",
		zap.String("stream", c.stream),
		zap.String("message_id", msg.ID),
		zap.Int64("deliveries", msg.Deliveries),
	)
	return c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
}

func rawMessage(m redis.XMessage, deliveries int64) RawMessage {
	body, _ := m.Values[bodyField].(string)
	return RawMessage{ID: m.ID, Body: []byte(body), Deliveries: deliveries}
}
