package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatsync/internal/outbox"
	"github.com/redis/go-redis/v9"
)

// Очередь живёт неделю: более старые неотправленные кадры уже не нужны.
const OutboxTTL = 7 * 24 * time.Hour

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func outboxKey(userID string) string { return "outbox:" + userID }

// SaveOutbox перезаписывает список outbox:{userID} целиком в одной транзакции.
func (c *Client) SaveOutbox(ctx context.Context, userID string, entries []outbox.Entry) error {
	key := outboxKey(userID)
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis.SaveOutbox marshal: %w", err)
		}
		values = append(values, raw)
	}
	_, err := c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(values) > 0 {
			p.RPush(ctx, key, values...)
			p.Expire(ctx, key, OutboxTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.SaveOutbox: %w", err)
	}
	return nil
}

// LoadOutbox читает очередь; битые записи пропускаются.
func (c *Client) LoadOutbox(ctx context.Context, userID string) ([]outbox.Entry, error) {
	vals, err := c.cli.LRange(ctx, outboxKey(userID), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis.LoadOutbox: %w", err)
	}
	entries := make([]outbox.Entry, 0, len(vals))
	for _, v := range vals {
		var e outbox.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
