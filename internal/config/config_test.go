package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 環境変数をクリア
	envVars := []string{
		"PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"HOLD_TTL", "HOLD_SWEEP_INTERVAL", "HOLD_SWEEP_BATCH_SIZE", "HOLD_LOCK_TTL",
		"RULES_MAX_PARTY_SIZE", "RULES_RESTRICTED_SECTIONS",
		"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_CURRENCY",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}

	cfg := Load()

	// Server defaults
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	// Database defaults
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "seat_reservation", cfg.Database.DBName)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	// Redis defaults
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	// Hold defaults
	assert.Equal(t, 15*time.Minute, cfg.Hold.TTL)
	assert.Equal(t, 20*time.Second, cfg.Hold.SweepInterval)
	assert.Equal(t, 100, cfg.Hold.SweepBatchSize)
	assert.Equal(t, 10*time.Second, cfg.Hold.LockTTL)

	// Rules defaults
	assert.Equal(t, 8, cfg.Rules.MaxPartySize)
	assert.Empty(t, cfg.Rules.RestrictedSections)

	// Stripe defaults
	assert.Equal(t, "", cfg.Stripe.SecretKey)
	assert.Equal(t, "gbp", cfg.Stripe.Currency)
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("SERVER_READ_TIMEOUT", "60s")
	os.Setenv("DB_HOST", "db.example.com")
	os.Setenv("DB_SSLMODE", "require")
	os.Setenv("REDIS_DB", "1")
	os.Setenv("HOLD_TTL", "2m")
	os.Setenv("HOLD_SWEEP_INTERVAL", "5s")
	os.Setenv("HOLD_SWEEP_BATCH_SIZE", "50")
	os.Setenv("RULES_MAX_PARTY_SIZE", "4")
	os.Setenv("RULES_RESTRICTED_SECTIONS", "royal-box, backstage")
	os.Setenv("STRIPE_CURRENCY", "jpy")
	defer func() {
		for _, env := range []string{
			"PORT", "SERVER_READ_TIMEOUT", "DB_HOST", "DB_SSLMODE", "REDIS_DB",
			"HOLD_TTL", "HOLD_SWEEP_INTERVAL", "HOLD_SWEEP_BATCH_SIZE",
			"RULES_MAX_PARTY_SIZE", "RULES_RESTRICTED_SECTIONS", "STRIPE_CURRENCY",
		} {
			os.Unsetenv(env)
		}
	}()

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, 2*time.Minute, cfg.Hold.TTL)
	assert.Equal(t, 5*time.Second, cfg.Hold.SweepInterval)
	assert.Equal(t, 50, cfg.Hold.SweepBatchSize)
	assert.Equal(t, 4, cfg.Rules.MaxPartySize)
	assert.Equal(t, []string{"royal-box", "backstage"}, cfg.Rules.RestrictedSections)
	assert.Equal(t, "jpy", cfg.Stripe.Currency)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "secret",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "user=postgres")
	assert.Contains(t, dsn, "password=secret")
	assert.Contains(t, dsn, "dbname=testdb")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := &RedisConfig{
		Host: "localhost",
		Port: "6379",
	}

	assert.Equal(t, "localhost:6379", cfg.Addr())
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_ENV_VAR", "custom_value")
	defer os.Unsetenv("TEST_ENV_VAR")

	assert.Equal(t, "custom_value", getEnv("TEST_ENV_VAR", "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT_VAR", "default"))
}

func TestGetIntEnv(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")

	assert.Equal(t, 42, getIntEnv("TEST_INT", 0))

	os.Setenv("TEST_INVALID_INT", "not_a_number")
	defer os.Unsetenv("TEST_INVALID_INT")

	assert.Equal(t, 99, getIntEnv("TEST_INVALID_INT", 99))
	assert.Equal(t, 100, getIntEnv("NON_EXISTENT_INT", 100))
}

func TestGetDurationEnv(t *testing.T) {
	os.Setenv("TEST_DURATION", "5m")
	defer os.Unsetenv("TEST_DURATION")

	assert.Equal(t, 5*time.Minute, getDurationEnv("TEST_DURATION", time.Second))

	os.Setenv("TEST_INVALID_DURATION", "invalid")
	defer os.Unsetenv("TEST_INVALID_DURATION")

	assert.Equal(t, 30*time.Second, getDurationEnv("TEST_INVALID_DURATION", 30*time.Second))
	assert.Equal(t, time.Minute, getDurationEnv("NON_EXISTENT_DURATION", time.Minute))
}

func TestGetListEnv(t *testing.T) {
	os.Setenv("TEST_LIST", "a, b ,c,")
	defer os.Unsetenv("TEST_LIST")

	assert.Equal(t, []string{"a", "b", "c"}, getListEnv("TEST_LIST"))
	assert.Nil(t, getListEnv("NON_EXISTENT_LIST"))
}
