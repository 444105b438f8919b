package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr string

	APIURL     string
	APITimeout time.Duration

	SessionSecret string
	CookieName    string
	CookieSecure  bool

	// StoreDriver is one of sqlite3, postgres or redis.
	StoreDriver string
	StoreDSN    string
	RedisAddr   string

	StaleTime    time.Duration
	GCTime       time.Duration
	RenderWait   time.Duration
	PollInterval time.Duration

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
	ServiceName  string
}

// Load parses args into a Config. Environment variables provide the
// defaults, so a flag always wins over the environment.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ponyexpress", flag.ContinueOnError)
	cfg := &Config{}

	fs.StringVar(&cfg.Addr, "addr", getEnv("PONY_ADDR", ":8080"), "http service address")
	fs.StringVar(&cfg.APIURL, "api-url", getEnv("PONY_API_URL", "http://127.0.0.1:8000"), "base URL of the chat API")
	fs.DurationVar(&cfg.APITimeout, "api-timeout", getDuration("PONY_API_TIMEOUT", 10*time.Second), "timeout for a single API call")
	fs.StringVar(&cfg.SessionSecret, "session-secret", getEnv("PONY_SESSION_SECRET", "super-secret-key-change-me-in-production"), "secret used to sign cookies and seal tokens")
	fs.StringVar(&cfg.CookieName, "cookie-name", getEnv("PONY_COOKIE_NAME", "pony_session"), "session cookie name")
	fs.BoolVar(&cfg.CookieSecure, "cookie-secure", getBool("PONY_COOKIE_SECURE", false), "mark the session cookie Secure")
	fs.StringVar(&cfg.StoreDriver, "store", getEnv("PONY_STORE", "sqlite3"), "session store: sqlite3, postgres or redis")
	fs.StringVar(&cfg.StoreDSN, "store-dsn", getEnv("PONY_STORE_DSN", "ponyexpress.db"), "session store data source name")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("PONY_REDIS_ADDR", "localhost:6379"), "redis address for the redis store")
	fs.DurationVar(&cfg.StaleTime, "stale-time", getDuration("PONY_STALE_TIME", 30*time.Second), "how long cached API reads stay fresh")
	fs.DurationVar(&cfg.GCTime, "gc-time", getDuration("PONY_GC_TIME", 5*time.Minute), "how long unused cache entries are kept")
	fs.DurationVar(&cfg.RenderWait, "render-wait", getDuration("PONY_RENDER_WAIT", 2*time.Second), "how long a page waits for reads before rendering placeholders")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", getDuration("PONY_POLL_INTERVAL", 10*time.Second), "chat view refresh interval, 0 disables")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("PONY_LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("PONY_LOG_FORMAT", "console"), "log format: console or json")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP/HTTP endpoint, empty disables tracing")
	fs.StringVar(&cfg.ServiceName, "service-name", getEnv("OTEL_SERVICE_NAME", "ponyexpress"), "service name reported to tracing")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("config: api url is required")
	}
	if c.SessionSecret == "" {
		return errors.New("config: session secret is required")
	}
	switch c.StoreDriver {
	case "sqlite3", "postgres", "redis":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.APITimeout <= 0 {
		return errors.New("config: api timeout must be positive")
	}
	if c.RenderWait <= 0 {
		return errors.New("config: render wait must be positive")
	}
	if c.StaleTime < 0 || c.GCTime < 0 || c.PollInterval < 0 {
		return errors.New("config: durations must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
