package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション設定を表す
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Hold     HoldConfig
	Rules    RulesConfig
	Stripe   StripeConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// HoldConfig はホールドの時限設定
type HoldConfig struct {
	// TTL はホールドの有効期間（チェックアウトの摩擦を考慮して長めに取る）
	TTL time.Duration
	// SweepInterval は期限切れスイープの実行間隔
	SweepInterval time.Duration
	// SweepBatchSize は1回のスイープで処理するホールド数の上限
	SweepBatchSize int
	// LockTTL は座席セットに対する分散ロックの有効期間
	LockTTL time.Duration
}

// RulesConfig は業務ルール設定
type RulesConfig struct {
	// MaxPartySize は1回の取引で確保できる座席数の上限
	MaxPartySize int
	// RestrictedSections は年齢制限等で一般販売しないセクションID
	RestrictedSections []string
}

// StripeConfig は決済プロバイダー設定
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Load は環境変数から設定を読み込む
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "seat_reservation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Hold: HoldConfig{
			TTL:            getDurationEnv("HOLD_TTL", 15*time.Minute),
			SweepInterval:  getDurationEnv("HOLD_SWEEP_INTERVAL", 20*time.Second),
			SweepBatchSize: getIntEnv("HOLD_SWEEP_BATCH_SIZE", 100),
			LockTTL:        getDurationEnv("HOLD_LOCK_TTL", 10*time.Second),
		},
		Rules: RulesConfig{
			MaxPartySize:       getIntEnv("RULES_MAX_PARTY_SIZE", 8),
			RestrictedSections: getListEnv("RULES_RESTRICTED_SECTIONS"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "gbp"),
		},
	}
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
