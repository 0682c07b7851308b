package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/memory"
	"github.com/chatsync/internal/storage/pebble"
)

// redisWait: сколько ждать Redis при старте агента.
const redisWait = 30 * time.Second

// OpenOutboxStore выбирает хранилище очереди исходящих по cfg.OutboxStore:
// memory (по умолчанию), redis или pebble.
// Если Redis недоступен, агент работает с очередью в памяти.
func OpenOutboxStore(ctx context.Context, cfg *config.Config, logPrefix string) (storage.OutboxStore, error) {
	switch cfg.OutboxStore {
	case "", "memory":
		logger.Infof("%soutbox: память процесса", logPrefix)
		return memory.New(), nil
	case "redis":
		client, err := ConnectRedisWithRetry(ctx, cfg.RedisURL, redisWait, logPrefix)
		if err != nil {
			logger.Warnf("%soutbox: redis недоступен, очередь только в памяти", logPrefix)
			return memory.New(), nil
		}
		logger.Infof("%soutbox: redis", logPrefix)
		return client, nil
	case "pebble":
		client, err := pebble.Open(cfg.PebbleDir, nil)
		if err != nil {
			return nil, err
		}
		logger.Infof("%soutbox: pebble %s", logPrefix, cfg.PebbleDir)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown outbox store %q", cfg.OutboxStore)
	}
}
