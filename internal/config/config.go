package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/cartsync/pkg/config"
)

// Session store backends.
const (
	SessionStoreFile   = "file"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Push transports.
const (
	PushNone      = "none"
	PushWebSocket = "websocket"
	PushRedis     = "redis"
	PushKafka     = "kafka"
)

// Config holds all configuration for the cartsync daemon.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Local control API
	HTTPPort int `env:"CARTSYNC_HTTP_PORT" envDefault:"8090"`
	// When set, login takes the user id from an HS256/384/512 bearer token.
	ControlJWTSecret string  `env:"CONTROL_JWT_SECRET" envDefault:""`
	ControlRateRPS   float64 `env:"CONTROL_RATE_LIMIT_RPS" envDefault:"50"`
	ControlRateBurst int     `env:"CONTROL_RATE_LIMIT_BURST" envDefault:"100"`

	// Backend cart API
	CartAPIBaseURL        string `env:"CART_API_BASE_URL" envDefault:"http://localhost:3000/api"`
	CartAPITimeoutSeconds int    `env:"CART_API_TIMEOUT_SECONDS" envDefault:"15"`
	CartAPIMaxRetries     int    `env:"CART_API_MAX_RETRIES" envDefault:"2"`

	// Quantity updates are sent after this quiet period.
	DebounceMs int `env:"CART_DEBOUNCE_MS" envDefault:"300"`

	// Guest session persistence
	SessionStore string `env:"SESSION_STORE" envDefault:"file"`
	SessionDir   string `env:"SESSION_DIR" envDefault:".cartsync"`

	// Redis
	RedisAddr          string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass          string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	RedisSessionPrefix string `env:"REDIS_SESSION_PREFIX" envDefault:"cartsync:session:"`

	// Push channel
	PushTransport     string   `env:"PUSH_TRANSPORT" envDefault:"none"`
	PushWSURL         string   `env:"PUSH_WS_URL" envDefault:"ws://localhost:3000/cart"`
	PushRedisPrefix   string   `env:"PUSH_REDIS_PREFIX" envDefault:"cart_updated"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	PushMinBackoffMs  int      `env:"PUSH_MIN_BACKOFF_MS" envDefault:"500"`
	PushMaxBackoffSec int      `env:"PUSH_MAX_BACKOFF_SECONDS" envDefault:"30"`

	// Circuit breaker settings for backend calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := pkgconfig.Load[Config]()
	if err != nil {
		return nil, fmt.Errorf("load cartsync config: %w", err)
	}
	return cfg, nil
}

// Debounce returns the configured quantity debounce.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Validate checks rules that span more than one variable.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.ParseRequestURI(c.CartAPIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid CART_API_BASE_URL %q: %w", c.CartAPIBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CART_API_BASE_URL must use http or https, got %q", u.Scheme)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("CART_DEBOUNCE_MS must not be negative, got %d", c.DebounceMs)
	}
	if c.CartAPIMaxRetries < 0 {
		return fmt.Errorf("CART_API_MAX_RETRIES must not be negative, got %d", c.CartAPIMaxRetries)
	}
	if !slices.Contains([]string{SessionStoreFile, SessionStoreRedis, SessionStoreMemory}, c.SessionStore) {
		return fmt.Errorf("SESSION_STORE must be one of file, redis, memory, got %q", c.SessionStore)
	}
	if c.SessionStore == SessionStoreFile && c.SessionDir == "" {
		return fmt.Errorf("SESSION_DIR is required for the file session store")
	}
	switch c.PushTransport {
	case PushNone, PushRedis:
	case PushWebSocket:
		if c.PushWSURL == "" {
			return fmt.Errorf("PUSH_WS_URL is required for the websocket transport")
		}
	case PushKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka transport")
		}
	default:
		return fmt.Errorf("PUSH_TRANSPORT must be one of none, websocket, redis, kafka, got %q", c.PushTransport)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	if c.ControlRateRPS > 0 && c.ControlRateBurst < 1 {
		return fmt.Errorf("CONTROL_RATE_LIMIT_BURST must be positive when rate limiting is on, got %d", c.ControlRateBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.SessionStore == SessionStoreRedis || c.PushTransport == PushRedis
}
