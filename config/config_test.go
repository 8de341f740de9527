package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	t.Setenv("APP_ENV", "production") // без чтения .env
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{
		"STRIPE_SECRET_KEY": "sk_test_1",
		"STORAGE_DRIVER":    "memory",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.GRPC.Port)
	assert.Equal(t, "http://localhost:5173", cfg.AllowedOrigin)
	assert.Equal(t, "http://localhost:5173/billing?checkout=success", cfg.Stripe.SuccessURL)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "jobtrack.", cfg.Kafka.TopicPrefix)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRequiresStripeSecret(t *testing.T) {
	setEnv(t, map[string]string{"STRIPE_SECRET_KEY": "", "STORAGE_DRIVER": "memory"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	setEnv(t, map[string]string{
		"STRIPE_SECRET_KEY":         "sk_test_1",
		"STORAGE_DRIVER":            "postgres",
		"DATABASE_URL":              "",
		"DATABASE_CREDENTIALS_FILE": "",
	})

	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(path, []byte("postgres://u:p@db:5432/jobs\n"), 0o600))

	setEnv(t, map[string]string{
		"STRIPE_SECRET_KEY":         "sk_test_1",
		"STORAGE_DRIVER":            "postgres",
		"DATABASE_URL":              "",
		"DATABASE_CREDENTIALS_FILE": path,
		"KAFKA_BROKERS":             "kafka-1:9092, kafka-2:9092",
		"CACHE_TTL":                 "30s",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/jobs", cfg.Storage.DSN)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setEnv(t, map[string]string{"STRIPE_SECRET_KEY": "sk_test_1", "STORAGE_DRIVER": "firestore"})

	_, err := Load()
	require.Error(t, err)
}
