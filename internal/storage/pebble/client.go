package pebble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chatsync/internal/outbox"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Client хранит очередь на локальном диске агента (без внешнего Redis).
type Client struct {
	db *pebble.DB
}

// Open открывает (или создаёт) базу в dir. fs == nil: настоящая файловая система.
func Open(dir string, fs vfs.FS) (*Client, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open %s: %w", dir, err)
	}
	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func outboxKey(userID string) []byte { return []byte("outbox/" + userID) }

// SaveOutbox хранит всю очередь одним значением; пустая очередь удаляет ключ.
func (c *Client) SaveOutbox(ctx context.Context, userID string, entries []outbox.Entry) error {
	if len(entries) == 0 {
		if err := c.db.Delete(outboxKey(userID), pebble.Sync); err != nil {
			return fmt.Errorf("pebble.SaveOutbox delete: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("pebble.SaveOutbox marshal: %w", err)
	}
	if err := c.db.Set(outboxKey(userID), raw, pebble.Sync); err != nil {
		return fmt.Errorf("pebble.SaveOutbox: %w", err)
	}
	return nil
}

func (c *Client) LoadOutbox(ctx context.Context, userID string) ([]outbox.Entry, error) {
	raw, closer, err := c.db.Get(outboxKey(userID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble.LoadOutbox: %w", err)
	}
	defer closer.Close()
	var entries []outbox.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("pebble.LoadOutbox unmarshal: %w", err)
	}
	return entries, nil
}
