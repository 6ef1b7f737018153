package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"paperco.app/intake/common/id"
	"paperco.app/intake/core/config"
)

// RedisTransport posts approval requests to a Redis stream the operations
// bridge mirrors into chat, and reads operator replies from a per-handle
// list the bridge pushes into. Replies stay in the list, so polling is
// read-only and repeatable.
type RedisTransport struct {
	client *redis.Client
	cfg    config.ApprovalConfig
}

func NewRedisTransport(client *redis.Client, cfg config.ApprovalConfig) *RedisTransport {
	return &RedisTransport{client: client, cfg: cfg}
}

func (t *RedisTransport) RequestApproval(ctx context.Context, summary string) (string, error) {
	handle := fmt.Sprintf("apr-%d", id.New())

	err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.cfg.RequestStream,
		Values: map[string]any{
			"handle":       handle,
			"summary":      summary,
			"requested_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("posting approval request: %w", err)
	}

	// Replies for an abandoned request should not linger forever.
	replyKey := t.replyKey(handle)
	_ = t.client.Expire(ctx, replyKey, 24*time.Hour).Err()

	return handle, nil
}

func (t *RedisTransport) Poll(ctx context.Context, handle string) (Verdict, error) {
	replies, err := t.client.LRange(ctx, t.replyKey(handle), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return VerdictPending, nil
		}
		return VerdictPending, fmt.Errorf("reading approval replies: %w", err)
	}

	for _, reply := range replies {
		if verdict := ParseReply(reply); verdict != VerdictPending {
			return verdict, nil
		}
	}
	return VerdictPending, nil
}

func (t *RedisTransport) replyKey(handle string) string {
	return t.cfg.ReplyPrefix + handle
}
