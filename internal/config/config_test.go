package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WebSocketURL())
	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.UploadGrace)
	assert.Equal(t, 2*time.Second, cfg.HighlightDuration)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadSize)
	assert.Equal(t, "memory", cfg.OutboxStore)
	assert.Equal(t, 256, cfg.OutboxSize)

	opts := cfg.EngineOptions()
	assert.Equal(t, 3*time.Second, opts.ReconnectDelay)
	assert.Equal(t, 5, opts.OutboxMaxAttempts)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: portal.school.example
secure: true
reconnect_delay_ms: 1500
outbox_store: pebble
`), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("OUTBOX_STORE", "REDIS")
	t.Setenv("CHAT_TOKEN", "tok")
	t.Setenv("TYPING_TTL_MS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "wss://portal.school.example/ws", cfg.WebSocketURL())
	assert.Equal(t, "https://portal.school.example", cfg.APIBaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, "redis", cfg.OutboxStore, "env wins over yaml")
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL, "bad env falls back")
}

func TestLoadBrokenYAMLUsesDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: [unclosed"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	assert.Equal(t, "localhost:8080", cfg.Host)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHAT_HOST=from-dotenv:9000\n"), 0o600))
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sub))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		os.Unsetenv("CHAT_HOST")
	})
	t.Setenv("APP_ENV", "")
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))

	cfg := Load()
	assert.Equal(t, "from-dotenv:9000", cfg.Host)
}
