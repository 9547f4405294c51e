package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr       string   `env:"GRPC_ADDR" envDefault:":50051"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	MySQLDSN             string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/supplyshare?parseTime=true"`
	MySQLMaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"50"`
	MySQLMaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"25"`
	MySQLConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate          bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"100"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	LockWaitTimeout time.Duration `env:"LOCK_WAIT_TIMEOUT" envDefault:"3s"`

	DefaultLinkTTL    time.Duration `env:"DEFAULT_LINK_TTL" envDefault:"72h"`
	MaxLinkTTL        time.Duration `env:"MAX_LINK_TTL" envDefault:"720h"`
	ExtractCodeLength int           `env:"EXTRACT_CODE_LENGTH" envDefault:"6"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`

	AuditQueueSize int           `env:"AUDIT_QUEUE_SIZE" envDefault:"1024"`
	AuditWorkers   int           `env:"AUDIT_WORKERS" envDefault:"2"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads an optional .env file and then the process environment, which
// wins over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.ExtractCodeLength < 4 || c.ExtractCodeLength > 32:
		return fmt.Errorf("EXTRACT_CODE_LENGTH must be within 4..32, got %d", c.ExtractCodeLength)
	case c.MaxLinkTTL < c.DefaultLinkTTL:
		return fmt.Errorf("MAX_LINK_TTL %s is shorter than DEFAULT_LINK_TTL %s", c.MaxLinkTTL, c.DefaultLinkTTL)
	case c.AuditWorkers < 1:
		return fmt.Errorf("AUDIT_WORKERS must be positive, got %d", c.AuditWorkers)
	case c.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return nil
}
