package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
	Chat     ChatConfig     `yaml:"chat"`
	AI       AIConfig       `yaml:"ai"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // development, production
}

// DatabaseConfig MySQL settings
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DBName          string `yaml:"dbname"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// GetDSN returns the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// RedisConfig Redis settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig token verification settings (seconds)
type JWTConfig struct {
	Secret    string `yaml:"secret"`
	ExpiresIn int    `yaml:"expires_in"`
	RefreshIn int    `yaml:"refresh_in"`
}

// CORSConfig comma-separated allowed origins
type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// ChatConfig chat behaviour knobs
type ChatConfig struct {
	TypingWindowMs     int    `yaml:"typing_window_ms"`
	PresenceTimeoutSec int    `yaml:"presence_timeout_sec"`
	TriggerToken       string `yaml:"trigger_token"`
	SendRatePerMinute  int    `yaml:"send_rate_per_minute"`
	SyncRatePerMinute  int    `yaml:"sync_rate_per_minute"`
}

// TypingWindow returns the typing indicator lifetime
func (c ChatConfig) TypingWindow() time.Duration {
	return time.Duration(c.TypingWindowMs) * time.Millisecond
}

// PresenceTimeout returns how long a heartbeat keeps a user online
func (c ChatConfig) PresenceTimeout() time.Duration {
	return time.Duration(c.PresenceTimeoutSec) * time.Second
}

// AIConfig chat-completion endpoint settings
type AIConfig struct {
	Enabled         bool   `yaml:"enabled"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	HistoryLimit    int    `yaml:"history_limit"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	RatePerMinute   int    `yaml:"rate_per_minute"`
	BreakerFailures int    `yaml:"breaker_failures"`
	BreakerOpenSec  int    `yaml:"breaker_open_sec"`
}

// KafkaConfig optional event mirror
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Mode == "" || c.Server.Mode == "development" || c.Server.Mode == "local"
}

// LoadDotEnv loads .env files with priority: .env.local > .env
// godotenv.Load does NOT overwrite already-set env vars,
// so OS env vars always win, .env.local wins over .env.
// Returns list of files actually loaded.
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// Load reads the YAML file at path (a missing file is not an error),
// applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only configuration
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret (JWT_SECRET) is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Mode, "SERVER_MODE")
	setInt(&cfg.Server.Port, "PORT")

	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.DBName, "DB_NAME")

	setString(&cfg.Redis.Host, "REDIS_HOST")
	setInt(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.CORS.AllowOrigins, "CORS_ALLOW_ORIGINS")

	setString(&cfg.AI.BaseURL, "AI_BASE_URL")
	setString(&cfg.AI.APIKey, "AI_API_KEY")
	setString(&cfg.AI.Model, "AI_MODEL")
	setBool(&cfg.AI.Enabled, "AI_ENABLED")

	setBool(&cfg.Kafka.Enabled, "KAFKA_ENABLED")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = SplitAndTrim(v, ",")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}
	if cfg.JWT.ExpiresIn == 0 {
		cfg.JWT.ExpiresIn = 900
	}
	if cfg.JWT.RefreshIn == 0 {
		cfg.JWT.RefreshIn = 86400
	}
	if cfg.Chat.TypingWindowMs == 0 {
		cfg.Chat.TypingWindowMs = 3000
	}
	if cfg.Chat.PresenceTimeoutSec == 0 {
		cfg.Chat.PresenceTimeoutSec = 60
	}
	if cfg.Chat.TriggerToken == "" {
		cfg.Chat.TriggerToken = "@AI"
	}
	if cfg.Chat.SendRatePerMinute == 0 {
		cfg.Chat.SendRatePerMinute = 60
	}
	if cfg.Chat.SyncRatePerMinute == 0 {
		cfg.Chat.SyncRatePerMinute = 20
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "openrouter/free"
	}
	if cfg.AI.HistoryLimit == 0 {
		cfg.AI.HistoryLimit = 20
	}
	if cfg.AI.TimeoutSec == 0 {
		cfg.AI.TimeoutSec = 60
	}
	if cfg.AI.RatePerMinute == 0 {
		cfg.AI.RatePerMinute = 30
	}
	if cfg.AI.BreakerFailures == 0 {
		cfg.AI.BreakerFailures = 5
	}
	if cfg.AI.BreakerOpenSec == 0 {
		cfg.AI.BreakerOpenSec = 30
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "chat-events"
	}
}

// LogResolved prints the effective configuration without secrets
func LogResolved(cfg *Config) {
	logger.Info("config: mode=%s port=%d db=%s@%s:%d/%s redis=%s:%d ai.enabled=%t ai.model=%s kafka.enabled=%t",
		cfg.Server.Mode, cfg.Server.Port,
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName,
		cfg.Redis.Host, cfg.Redis.Port,
		cfg.AI.Enabled, cfg.AI.Model, cfg.Kafka.Enabled)
}

// SplitAndTrim splits s by sep and drops empty parts
func SplitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
