package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	Auth     AuthConfig
	Issuance IssuanceConfig
	SMTP     SMTPConfig
	Lookup   LookupConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    int
	RateBurst    int
}

type DatabaseConfig struct {
	Driver       string // mysql, sqlite or memory
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	Path         string // sqlite file path
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	Timeout      time.Duration // per store operation
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	GroupID string
	Topic   string
}

type StripeConfig struct {
	WebhookSecret            string
	IgnoreAPIVersionMismatch bool
}

type AuthConfig struct {
	OperatorSecret string
	SessionTTL     time.Duration
}

type IssuanceConfig struct {
	IdempotencyTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Enabled reports whether enough SMTP settings exist to deliver mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port > 0
}

type LookupConfig struct {
	CandidateLimit int
	ResultLimit    int
}

type NotifyConfig struct {
	Workers int
	Buffer  int
}

// Load reads configuration from the environment. Call godotenv.Load first to pick up .env.
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", ":3001"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RateLimit:    getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateBurst:    getEnvAsInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "3306"),
			Username:     getEnv("DB_USER", "root"),
			Password:     getEnv("DB_PASS", ""),
			Database:     getEnv("DB_NAME", "vender"),
			Path:         getEnv("DB_PATH", "./data/vender.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
			Timeout:      getEnvAsDuration("STORE_TIMEOUT", "5s"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsList("KAFKA_BROKERS", "localhost:29092"),
			GroupID: getEnv("KAFKA_GROUP_ID", "vender-notifications"),
			Topic:   getEnv("KAFKA_TOPIC", "ticket-notifications"),
		},
		Stripe: StripeConfig{
			WebhookSecret:            getEnv("STRIPE_WEBHOOK_SECRET", ""),
			IgnoreAPIVersionMismatch: getEnvAsBool("STRIPE_IGNORE_API_VERSION", true),
		},
		Auth: AuthConfig{
			OperatorSecret: getEnv("PRIVATE_CODE", ""),
			SessionTTL:     getEnvAsDuration("SESSION_TTL", "24h"),
		},
		Issuance: IssuanceConfig{
			IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", "720h"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 0),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", getEnv("SMTP_USER", "no-reply@example.com")),
			FromName: getEnv("SMTP_FROM_NAME", "Vender Tickets"),
		},
		Lookup: LookupConfig{
			CandidateLimit: getEnvAsInt("LOOKUP_CANDIDATE_LIMIT", 200),
			ResultLimit:    getEnvAsInt("LOOKUP_RESULT_LIMIT", 25),
		},
		Notify: NotifyConfig{
			Workers: getEnvAsInt("NOTIFY_WORKERS", 2),
			Buffer:  getEnvAsInt("NOTIFY_BUFFER", 256),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.Auth.OperatorSecret == "" {
		errs = append(errs, errors.New("PRIVATE_CODE is required"))
	}
	switch c.Database.Driver {
	case "mysql", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	if c.SMTP.Host != "" && c.SMTP.Port <= 0 {
		errs = append(errs, errors.New("SMTP_PORT must be set when SMTP_HOST is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if duration, err := time.ParseDuration(getEnv(key, defaultValue)); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
