package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"paperco.app/intake/common/logger"
	"paperco.app/intake/core/config"
	"paperco.app/intake/internal/domain"
)

// RedisTransport implements Transport over Redis Streams. The mail bridge
// XADDs one entry per inbound email; a consumer group makes delivery
// exactly-once-per-group, and XACK is what "mark processed" means. Replies
// and review parks go out on their own streams for the bridge to drain.
type RedisTransport struct {
	client *redis.Client
	cfg    config.InboxConfig

	// delivered maps a message id back to the stream entry id so the ack
	// can happen after the pipeline run, without re-reading the stream.
	delivered map[string]string
}

func NewRedisTransport(client *redis.Client, cfg config.InboxConfig) (*RedisTransport, error) {
	t := &RedisTransport{
		client:    client,
		cfg:       cfg,
		delivered: make(map[string]string),
	}

	if err := t.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return t, nil
}

func (t *RedisTransport) ensureGroup(ctx context.Context) error {
	// Starting from "0" instead of "$" means messages added before a
	// restart are still seen by the group.
	if err := t.client.XGroupCreateMkStream(ctx, t.cfg.Stream, t.cfg.Group, "0").Err(); err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (t *RedisTransport) Next(ctx context.Context) (*domain.Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "intake.inbox.redis",
	})

	// Unacked entries from an earlier read come back first, so a message
	// whose processing failed is retried before anything new is taken on.
	// A negative block keeps the pending read from blocking at all.
	if msg, err := t.read(ctx, "0", -1); msg != nil || err != nil {
		return msg, err
	}
	return t.read(ctx, ">", t.cfg.Block)
}

// read runs one XREADGROUP. The "0" cursor yields this consumer's pending
// entries; ">" yields entries never delivered to anyone in the group.
func (t *RedisTransport) read(ctx context.Context, cursor string, block time.Duration) (*domain.Message, error) {
	streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{t.cfg.Stream, cursor},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading inbox stream: %w", err)
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			msg, parseErr := parseEntry(entry)
			if parseErr != nil {
				// A malformed entry can never reach a terminal outcome;
				// park it for an operator and keep going.
				slog.ErrorContext(ctx, "malformed inbox entry, parking for review",
					"error", parseErr,
					"entry_id", entry.ID)
				t.parkEntry(ctx, entry, parseErr.Error())
				continue
			}
			t.delivered[msg.ID] = entry.ID
			slog.DebugContext(ctx, "inbox message delivered",
				"message_id", msg.ID,
				"sender", msg.Sender,
				"subject", logger.Truncate(msg.Subject, 80))
			return &msg, nil
		}
	}

	return nil, nil
}

func (t *RedisTransport) Reply(ctx context.Context, threadID, body, attachment string) error {
	values := map[string]any{
		"thread_id": threadID,
		"body":      body,
		"sent_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if attachment != "" {
		values["attachment"] = attachment
	}

	if err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.cfg.ReplyStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd reply (stream=%s): %w", t.cfg.ReplyStream, err)
	}

	slog.InfoContext(ctx, "reply queued", "thread_id", threadID)
	return nil
}

func (t *RedisTransport) MarkProcessed(ctx context.Context, id string) error {
	entryID, ok := t.delivered[id]
	if !ok {
		return fmt.Errorf("message %s was not delivered by this transport", id)
	}

	if err := t.client.XAck(ctx, t.cfg.Stream, t.cfg.Group, entryID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", t.cfg.Stream, err)
	}
	delete(t.delivered, id)

	slog.DebugContext(ctx, "message marked processed", "message_id", id)
	return nil
}

func (t *RedisTransport) MarkForReview(ctx context.Context, msg domain.Message, reason string) error {
	entryID, ok := t.delivered[msg.ID]
	if !ok {
		return fmt.Errorf("message %s was not delivered by this transport", msg.ID)
	}

	if err := t.client.XAck(ctx, t.cfg.Stream, t.cfg.Group, entryID).Err(); err != nil {
		return fmt.Errorf("acking message for review: %w", err)
	}
	delete(t.delivered, msg.ID)

	if err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.cfg.ReviewStream,
		Values: map[string]any{
			"message_id": msg.ID,
			"thread_id":  msg.ThreadID,
			"sender":     msg.Sender,
			"subject":    msg.Subject,
			"body":       msg.Body,
			"reason":     reason,
		},
	}).Err(); err != nil {
		return fmt.Errorf("xadd review (stream=%s): %w", t.cfg.ReviewStream, err)
	}

	slog.WarnContext(ctx, "message parked for manual review",
		"message_id", msg.ID,
		"reason", reason)
	return nil
}

func (t *RedisTransport) parkEntry(ctx context.Context, entry redis.XMessage, reason string) {
	values := map[string]any{"reason": reason}
	for k, v := range entry.Values {
		values[k] = v
	}
	if err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.cfg.ReviewStream,
		Values: values,
	}).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to park malformed entry", "error", err)
		return
	}
	_ = t.client.XAck(ctx, t.cfg.Stream, t.cfg.Group, entry.ID).Err()
}

func parseEntry(entry redis.XMessage) (domain.Message, error) {
	id, err := parseString(entry.Values, "message_id")
	if err != nil {
		return domain.Message{}, err
	}
	sender, err := parseString(entry.Values, "sender")
	if err != nil {
		return domain.Message{}, err
	}
	body, err := parseString(entry.Values, "body")
	if err != nil {
		return domain.Message{}, err
	}

	// Thread id defaults to the message id: the bridge omits it for the
	// first message of a thread.
	threadID := parseOptionalString(entry.Values, "thread_id")
	if threadID == "" {
		threadID = id
	}

	return domain.Message{
		ID:       id,
		ThreadID: threadID,
		Sender:   sender,
		Subject:  parseOptionalString(entry.Values, "subject"),
		Body:     body,
	}, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q is empty or not a string", key)
	}
	return s, nil
}

func parseOptionalString(values map[string]any, key string) string {
	if raw, ok := values[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}
