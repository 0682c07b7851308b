package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
// Ищем файл в текущем каталоге и до пяти уровней вверх; уже заданные переменные не перезаписываются.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				logger.Errorf("config: ошибка чтения %s: %v", path, err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// Config содержит настройки движка синхронизации чата и локального агента.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Сервер чата
	Host       string `yaml:"host"`
	Secure     bool   `yaml:"secure"`
	Token      string `yaml:"-"`
	APIBaseURL string `yaml:"api_base_url"`

	// Тайминги движка
	ReconnectDelay    time.Duration `yaml:"-"`
	TypingTTL         time.Duration `yaml:"-"`
	TypingThrottle    time.Duration `yaml:"-"`
	UploadGrace       time.Duration `yaml:"-"`
	HighlightDuration time.Duration `yaml:"-"`

	// Вложения
	MaxUploadSize int64 `yaml:"-"`

	// Очередь исходящих
	OutboxSize        int    `yaml:"outbox_size"`
	OutboxMaxAttempts int    `yaml:"outbox_max_attempts"`
	OutboxStore       string `yaml:"outbox_store"`
	RedisURL          string `yaml:"redis_url"`
	PebbleDir         string `yaml:"pebble_dir"`

	// WebSocket
	WSWriteTimeout   time.Duration `yaml:"-"`
	WSPongTimeout    time.Duration `yaml:"-"`
	WSMaxMessageSize int64         `yaml:"-"`

	// Локальный API агента
	ControlAddr        string  `yaml:"control_addr"`
	CORSAllowedOrigins string  `yaml:"cors_allowed_origins"`
	ControlRatePerSec  float64 `yaml:"control_rate_per_sec"`

	// Логирование
	LogLevel string `yaml:"log_level"`
}

// yamlConfig: промежуточная структура для парсинга YAML (интервалы в миллисекундах/секундах).
type yamlConfig struct {
	Host               string  `yaml:"host"`
	Secure             bool    `yaml:"secure"`
	APIBaseURL         string  `yaml:"api_base_url"`
	ReconnectDelayMS   int     `yaml:"reconnect_delay_ms"`
	TypingTTLMS        int     `yaml:"typing_ttl_ms"`
	TypingThrottleMS   int     `yaml:"typing_throttle_ms"`
	UploadGraceMS      int     `yaml:"upload_grace_ms"`
	HighlightMS        int     `yaml:"highlight_ms"`
	MaxUploadSizeMB    int     `yaml:"max_upload_size_mb"`
	OutboxSize         int     `yaml:"outbox_size"`
	OutboxMaxAttempts  int     `yaml:"outbox_max_attempts"`
	OutboxStore        string  `yaml:"outbox_store"`
	RedisURL           string  `yaml:"redis_url"`
	PebbleDir          string  `yaml:"pebble_dir"`
	WSWriteTimeout     int     `yaml:"ws_write_timeout"`
	WSPongTimeout      int     `yaml:"ws_pong_timeout"`
	WSMaxMessageSize   int     `yaml:"ws_max_message_size"`
	ControlAddr        string  `yaml:"control_addr"`
	CORSAllowedOrigins string  `yaml:"cors_allowed_origins"`
	ControlRatePerSec  float64 `yaml:"control_rate_per_sec"`
	LogLevel           string  `yaml:"log_level"`
}

func defaults() yamlConfig {
	return yamlConfig{
		Host:               "localhost:8080",
		ReconnectDelayMS:   3000,
		TypingTTLMS:        3000,
		TypingThrottleMS:   2000,
		UploadGraceMS:      500,
		HighlightMS:        2000,
		MaxUploadSizeMB:    50,
		OutboxSize:         256,
		OutboxMaxAttempts:  5,
		OutboxStore:        "memory",
		RedisURL:           "redis://localhost:6379",
		PebbleDir:          "./data/outbox",
		WSWriteTimeout:     10,
		WSPongTimeout:      60,
		WSMaxMessageSize:   1 << 20,
		ControlAddr:        "127.0.0.1:8790",
		CORSAllowedOrigins: "*",
		ControlRatePerSec:  50,
		LogLevel:           "info",
	}
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	yc := defaults()

	// Загрузка конфигурации: CONFIG_PATH → config/agent.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/agent.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
			yc = defaults()
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	cfg := &Config{
		Host:               envStr("CHAT_HOST", yc.Host),
		Secure:             envBool("CHAT_SECURE", yc.Secure),
		Token:              envStr("CHAT_TOKEN", ""),
		APIBaseURL:         envStr("API_BASE_URL", yc.APIBaseURL),
		ReconnectDelay:     envMillis("RECONNECT_DELAY_MS", yc.ReconnectDelayMS),
		TypingTTL:          envMillis("TYPING_TTL_MS", yc.TypingTTLMS),
		TypingThrottle:     envMillis("TYPING_THROTTLE_MS", yc.TypingThrottleMS),
		UploadGrace:        envMillis("UPLOAD_GRACE_MS", yc.UploadGraceMS),
		HighlightDuration:  envMillis("HIGHLIGHT_MS", yc.HighlightMS),
		MaxUploadSize:      int64(envInt("MAX_UPLOAD_SIZE_MB", yc.MaxUploadSizeMB)) << 20,
		OutboxSize:         envInt("OUTBOX_SIZE", yc.OutboxSize),
		OutboxMaxAttempts:  envInt("OUTBOX_MAX_ATTEMPTS", yc.OutboxMaxAttempts),
		OutboxStore:        strings.ToLower(envStr("OUTBOX_STORE", yc.OutboxStore)),
		RedisURL:           envStr("REDIS_URL", yc.RedisURL),
		PebbleDir:          envStr("PEBBLE_DIR", yc.PebbleDir),
		WSWriteTimeout:     time.Duration(envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout)) * time.Second,
		WSPongTimeout:      time.Duration(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout)) * time.Second,
		WSMaxMessageSize:   int64(envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize)),
		ControlAddr:        envStr("CONTROL_ADDR", yc.ControlAddr),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		ControlRatePerSec:  envFloat("CONTROL_RATE_PER_SEC", yc.ControlRatePerSec),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = cfg.HTTPBase()
	}
	return cfg
}

// WebSocketURL возвращает адрес сокета без токена: ws(s)://host/ws.
func (c *Config) WebSocketURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.Host + "/ws"
}

// HTTPBase возвращает http(s)://host для REST-запросов.
func (c *Config) HTTPBase() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.Host
}

// EngineOptions переводит настройки в параметры движка.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		ReconnectDelay:    c.ReconnectDelay,
		TypingTTL:         c.TypingTTL,
		TypingThrottle:    c.TypingThrottle,
		UploadGrace:       c.UploadGrace,
		HighlightDuration: c.HighlightDuration,
		MaxUploadSize:     c.MaxUploadSize,
		OutboxSize:        c.OutboxSize,
		OutboxMaxAttempts: c.OutboxMaxAttempts,
	}
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envMillis читает интервал в миллисекундах.
func envMillis(key string, fallbackMS int) time.Duration {
	return time.Duration(envInt(key, fallbackMS)) * time.Millisecond
}
