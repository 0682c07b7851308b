package memory

import (
	"context"
	"sync"

	"github.com/chatsync/internal/outbox"
)

// Client хранит очередь в памяти процесса: переживает переподключение, но не перезапуск.
type Client struct {
	mu     sync.RWMutex
	outbox map[string][]outbox.Entry
}

func New() *Client {
	return &Client{outbox: make(map[string][]outbox.Entry)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveOutbox(ctx context.Context, userID string, entries []outbox.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(entries) == 0 {
		delete(c.outbox, userID)
		return nil
	}
	c.outbox[userID] = append([]outbox.Entry(nil), entries...)
	return nil
}

func (c *Client) LoadOutbox(ctx context.Context, userID string) ([]outbox.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]outbox.Entry(nil), c.outbox[userID]...), nil
}
