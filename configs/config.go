package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PublisherPolling   = "polling"
	PublisherWebsocket = "websocket"
	PublisherRedis     = "redis"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

type Config struct {
	AppPort string
	Env     string

	Publisher       string
	PollingInterval time.Duration
	PollingTimeout  time.Duration
	PollRateLimit   int64
	EmbedPatterns   []string

	PageStore  string
	SQLitePath string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPass     string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	SlackSigningSecret string
	SlackBotToken      string
	JWTSecret          string

	TelegramBotToken string
	TelegramAPIBase  string
	// TelegramWebhookSecret overrides the secret_token derived from the bot token.
	TelegramWebhookSecret string

	// TrustForwardedFor makes client IPs come from X-Forwarded-For. Enable it
	// only behind a proxy that overwrites the header.
	TrustForwardedFor bool

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3PublicURL string
}

// LoadConfig reads settings from the environment, after loading a .env file
// when one is present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigurationError{Key: ".env", Reason: err.Error()}
	}

	c := &Config{
		AppPort: getEnv("APP_PORT", ":8080"),
		Env:     getEnv("ENV", "dev"),

		Publisher: strings.ToLower(os.Getenv("LIVE_PUBLISHER")),
		PageStore: strings.ToLower(getEnv("LIVE_PAGE_STORE", StoreMemory)),

		SQLitePath: getEnv("SQLITE_PATH", "live.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPass:     getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "live_db"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBrokers: os.Getenv("KAFKA_BOOTSTRAP_SERVERS"),
		KafkaTopic:   getEnv("LIVE_KAFKA_TOPIC", "live.events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "live-service"),

		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		JWTSecret:          os.Getenv("JWT_SECRET"),

		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:       os.Getenv("TELEGRAM_API_BASE"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    getEnv("S3_BUCKET", "live-media"),
		S3PublicURL: os.Getenv("S3_PUBLIC_URL"),
	}

	switch c.Publisher {
	case PublisherPolling, PublisherWebsocket, PublisherRedis:
	case "":
		return nil, &ConfigurationError{Key: "LIVE_PUBLISHER", Reason: "is required"}
	default:
		return nil, &ConfigurationError{Key: "LIVE_PUBLISHER", Reason: fmt.Sprintf("unknown publisher %q", c.Publisher)}
	}
	switch c.PageStore {
	case StoreMemory, StoreRedis, StorePostgres, StoreSQLite:
	default:
		return nil, &ConfigurationError{Key: "LIVE_PAGE_STORE", Reason: fmt.Sprintf("unknown store %q", c.PageStore)}
	}

	var err error
	if c.PollingInterval, err = durationEnv("LIVE_POLLING_INTERVAL_MS", 3000, time.Millisecond); err != nil {
		return nil, err
	}
	if c.PollingTimeout, err = durationEnv("LIVE_POLLING_TIMEOUT_S", 60, time.Second); err != nil {
		return nil, err
	}
	limit, err := intEnv("LIVE_POLL_RATE_LIMIT", 0)
	if err != nil {
		return nil, err
	}
	c.PollRateLimit = int64(limit)
	if c.S3UseSSL, err = boolEnv("S3_USE_SSL", false); err != nil {
		return nil, err
	}
	if c.TrustForwardedFor, err = boolEnv("LIVE_TRUST_FORWARDED_FOR", false); err != nil {
		return nil, err
	}
	if p := os.Getenv("LIVE_EMBED_PATTERNS"); p != "" {
		for _, s := range strings.Split(p, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.EmbedPatterns = append(c.EmbedPatterns, s)
			}
		}
	}
	return c, nil
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Publisher == PublisherRedis || c.PageStore == StoreRedis || c.PollRateLimit > 0
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("want a non-negative integer, got %q", v)}
	}
	return n, nil
}

func durationEnv(key string, fallback int, unit time.Duration) (time.Duration, error) {
	n, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, &ConfigurationError{Key: key, Reason: "must be positive"}
	}
	return time.Duration(n) * unit, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &ConfigurationError{Key: key, Reason: fmt.Sprintf("want a boolean, got %q", v)}
	}
	return b, nil
}
