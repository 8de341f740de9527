package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config структура конфигурации приложения
type Config struct {
	Env           string
	LogLevel      string
	AllowedOrigin string
	Server        ServerConfig
	GRPC          GRPCConfig
	Stripe        StripeConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// GRPCConfig конфигурация gRPC сервера. Пустой порт отключает сервер.
type GRPCConfig struct {
	Port string
}

// StripeConfig конфигурация Stripe
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PricePro      string
	PriceTeam     string
	PaymentLink   string
	SuccessURL    string
	CancelURL     string
}

// StorageConfig выбирает хранилище: postgres или memory.
type StorageConfig struct {
	Driver          string
	DSN             string
	CredentialsFile string
}

// RedisConfig конфигурация кэша; пустой Addr отключает кэш.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig конфигурация публикации событий; без брокеров события не отправляются.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// Драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// IsProduction - запущен ли сервис в production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load загружает конфигурацию из переменных окружения (и .env вне production).
// Возвращает ошибку, если не задан секрет Stripe или строка подключения к базе.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to read .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	origin := v.GetString("ALLOWED_ORIGIN")
	cfg := &Config{
		Env:           v.GetString("APP_ENV"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		AllowedOrigin: origin,
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		GRPC: GRPCConfig{Port: v.GetString("GRPC_PORT")},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			PricePro:      v.GetString("STRIPE_PRICE_PRO"),
			PriceTeam:     v.GetString("STRIPE_PRICE_TEAM"),
			PaymentLink:   v.GetString("STRIPE_PAYMENT_LINK"),
			SuccessURL:    stringOr(v.GetString("CHECKOUT_SUCCESS_URL"), strings.TrimRight(origin, "/")+"/billing?checkout=success"),
			CancelURL:     stringOr(v.GetString("CHECKOUT_CANCEL_URL"), strings.TrimRight(origin, "/")+"/billing?checkout=cancel"),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
			DSN:             v.GetString("DATABASE_URL"),
			CredentialsFile: v.GetString("DATABASE_CREDENTIALS_FILE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			TopicPrefix: v.GetString("KAFKA_TOPIC_PREFIX"),
		},
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://localhost:5173")
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("GRPC_PORT", "9090")
	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", 5*time.Minute)
	v.SetDefault("KAFKA_TOPIC_PREFIX", "jobtrack.")
}

// resolve проверяет обязательные значения и читает DSN из файла, если он указан.
func (c *Config) resolve() error {
	if c.Stripe.SecretKey == "" {
		return errors.New("config: STRIPE_SECRET_KEY is required")
	}

	switch c.Storage.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Storage.DSN == "" && c.Storage.CredentialsFile != "" {
		raw, err := os.ReadFile(c.Storage.CredentialsFile)
		if err != nil {
			return fmt.Errorf("config: failed to read DATABASE_CREDENTIALS_FILE: %w", err)
		}
		c.Storage.DSN = strings.TrimSpace(string(raw))
	}
	if c.Storage.DSN == "" {
		return errors.New("config: DATABASE_URL or DATABASE_CREDENTIALS_FILE is required for postgres storage")
	}
	return nil
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
