package startup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/outbox"
	"github.com/chatsync/internal/storage/memory"
	"github.com/chatsync/internal/storage/pebble"
	redisstorage "github.com/chatsync/internal/storage/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOutboxStoreMemory(t *testing.T) {
	s, err := OpenOutboxStore(context.Background(), &config.Config{OutboxStore: "memory"}, "test: ")
	require.NoError(t, err)
	assert.IsType(t, &memory.Client{}, s)
}

func TestOpenOutboxStorePebble(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	s, err := OpenOutboxStore(context.Background(), &config.Config{OutboxStore: "pebble", PebbleDir: dir}, "test: ")
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &pebble.Client{}, s)

	ctx := context.Background()
	require.NoError(t, s.SaveOutbox(ctx, "me", []outbox.Entry{{Key: "message:m1", Type: "message", Data: []byte(`{}`)}}))
	got, err := s.LoadOutbox(ctx, "me")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestOpenOutboxStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenOutboxStore(context.Background(), &config.Config{OutboxStore: "redis", RedisURL: "redis://" + mr.Addr()}, "test: ")
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &redisstorage.Client{}, s)
}

func TestOpenOutboxStoreRedisDownFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s, err := OpenOutboxStore(ctx, &config.Config{OutboxStore: "redis", RedisURL: "redis://" + addr}, "test: ")
	require.NoError(t, err)
	assert.IsType(t, &memory.Client{}, s)
}

func TestOpenOutboxStoreUnknown(t *testing.T) {
	_, err := OpenOutboxStore(context.Background(), &config.Config{OutboxStore: "sqlite"}, "test: ")
	assert.Error(t, err)
}
