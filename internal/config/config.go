package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"
)

type Config struct {
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"peerpay"`

	JWTSecret string `env:"JWT_SECRET,required"`
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv    string `env:"APP_ENV" envDefault:"production"`

	Currency         string `env:"CURRENCY" envDefault:"PHP"`
	CurrencyExponent int32  `env:"CURRENCY_EXPONENT" envDefault:"2"`
	// TransferLimitMinor caps one transfer in minor units; 0 disables it.
	TransferLimitMinor int64         `env:"TRANSFER_LIMIT_MINOR" envDefault:"5000000"`
	HistoryMaxLimit    int           `env:"HISTORY_MAX_LIMIT" envDefault:"100"`
	TransferTimeout    time.Duration `env:"TRANSFER_TIMEOUT" envDefault:"10s"`

	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic        string        `env:"KAFKA_TOPIC" envDefault:"peerpay.transfers"`
	KafkaWriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"5s"`
	// EventPublishTimeout caps how long a completed transfer waits on the broker.
	EventPublishTimeout time.Duration `env:"EVENT_PUBLISH_TIMEOUT" envDefault:"2s"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int           `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int           `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverRedis, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if !domain.Currency(c.Currency).IsValid() {
		return fmt.Errorf("CURRENCY %q is not a three-letter code", c.Currency)
	}
	if c.CurrencyExponent < 0 || c.CurrencyExponent > 4 {
		return fmt.Errorf("CURRENCY_EXPONENT %d out of range", c.CurrencyExponent)
	}
	if c.TransferLimitMinor < 0 {
		return fmt.Errorf("TRANSFER_LIMIT_MINOR must not be negative")
	}
	if c.HistoryMaxLimit <= 0 {
		return fmt.Errorf("HISTORY_MAX_LIMIT must be positive")
	}
	return nil
}
