package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stock-ledger/internal/core"
)

const (
	DefaultChannel = "stock.reorder"
	lastAlertTTL   = 24 * time.Hour
)

// RedisNotifier publishes alerts as JSON on a pub/sub channel and keeps the
// latest alert per item under "<channel>:last:<item_id>" for a day.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (n *RedisNotifier) NotifyReorder(ctx context.Context, a core.ReorderAlert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode reorder alert: %w", err)
	}

	pipe := n.client.TxPipeline()
	pipe.Publish(ctx, n.channel, payload)
	pipe.Set(ctx, n.LastAlertKey(a.ItemID), payload, lastAlertTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish reorder alert for item %d: %w", a.ItemID, err)
	}
	return nil
}

func (n *RedisNotifier) LastAlertKey(itemID int) string {
	return fmt.Sprintf("%s:last:%d", n.channel, itemID)
}

// LastAlert returns the most recent alert for an item, if one is retained.
func (n *RedisNotifier) LastAlert(ctx context.Context, itemID int) (core.ReorderAlert, bool, error) {
	raw, err := n.client.Get(ctx, n.LastAlertKey(itemID)).Bytes()
	if err == redis.Nil {
		return core.ReorderAlert{}, false, nil
	}
	if err != nil {
		return core.ReorderAlert{}, false, fmt.Errorf("failed to read last alert for item %d: %w", itemID, err)
	}
	var a core.ReorderAlert
	if err := json.Unmarshal(raw, &a); err != nil {
		return core.ReorderAlert{}, false, fmt.Errorf("failed to decode last alert for item %d: %w", itemID, err)
	}
	return a, true, nil
}
