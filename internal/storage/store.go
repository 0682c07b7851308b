package storage

import (
	"context"

	"github.com/chatsync/internal/outbox"
)

// OutboxStore: хранилище неподтверждённых исходящих кадров сессии.
// Реализации: redis.Client, pebble.Client (локальный диск), memory.Client (по умолчанию).
type OutboxStore interface {
	SaveOutbox(ctx context.Context, userID string, entries []outbox.Entry) error
	LoadOutbox(ctx context.Context, userID string) ([]outbox.Entry, error)
	Close() error
}
