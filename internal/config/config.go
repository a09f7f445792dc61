// Package config provides application configuration loaded from environment
// variables, optionally layered over a YAML file named by CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Discord  DiscordConfig  `yaml:"discord"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Guard    GuardConfig    `yaml:"guard"`
	App      AppConfig      `yaml:"app"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string `yaml:"port"`
	ReadTimeout     int    `yaml:"read_timeout"`  // seconds
	WriteTimeout    int    `yaml:"write_timeout"` // seconds
	IdleTimeout     int    `yaml:"idle_timeout"`  // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds connection settings. URL wins over the discrete fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Debug    bool   `yaml:"debug"`
}

// AuthConfig holds session token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

// DiscordConfig configures the guild role oracle.
type DiscordConfig struct {
	BotToken         string        `yaml:"bot_token"`
	GuildID          string        `yaml:"guild_id"`
	StaffRoleID      string        `yaml:"staff_role_id"`
	Provider         string        `yaml:"provider"`
	FallbackStaffIDs []string      `yaml:"fallback_staff_ids"`
	CheckTimeout     time.Duration `yaml:"check_timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// RedisConfig enables the shared role cache when URL is set.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// KafkaConfig enables audit publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"audit_topic"`
}

// GuardConfig tunes the access-denied response.
type GuardConfig struct {
	RedirectDelay time.Duration `yaml:"redirect_delay"`
	RedirectURL   string        `yaml:"redirect_url"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev               bool          `yaml:"dev"`
	Migrations        bool          `yaml:"migrations"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	SeedFile          string        `yaml:"seed_file"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileBatch    int           `yaml:"reconcile_batch"`
	ReconcileAttempts int           `yaml:"reconcile_attempts"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Driver == "sqlite" {
		return "file:swims.db?_foreign_keys=on"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Defaults returns the configuration used for local development.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", ReadTimeout: 15, WriteTimeout: 15, IdleTimeout: 60, ShutdownTimeout: 10},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			User:    "swims",
			DBName:  "swims",
			SSLMode: "disable",
		},
		Discord: DiscordConfig{
			Provider:     "discord",
			CheckTimeout: 2500 * time.Millisecond,
			CacheTTL:     5 * time.Minute,
		},
		Redis: RedisConfig{KeyPrefix: "swims:role:"},
		Kafka: KafkaConfig{AuditTopic: "swims.audit"},
		Guard: GuardConfig{RedirectDelay: 3 * time.Second, RedirectURL: "/"},
		App: AppConfig{
			Dev:               true,
			LogLevel:          "info",
			LogFormat:         "text",
			ReconcileInterval: time.Minute,
			ReconcileBatch:    100,
			ReconcileAttempts: 10,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE if any, then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// Decoding into the populated struct keeps defaults for absent keys.
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvInt("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvInt("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Debug = getEnvBool("DB_DEBUG", c.Database.Debug)

	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Audience = getEnv("AUTH_JWT_AUDIENCE", c.Auth.Audience)

	c.Discord.BotToken = getEnv("DISCORD_BOT_TOKEN", c.Discord.BotToken)
	c.Discord.GuildID = getEnv("DISCORD_GUILD_ID", c.Discord.GuildID)
	c.Discord.StaffRoleID = getEnv("DISCORD_STAFF_ROLE_ID", c.Discord.StaffRoleID)
	c.Discord.Provider = getEnv("DISCORD_PROVIDER", c.Discord.Provider)
	c.Discord.FallbackStaffIDs = getEnvList("DISCORD_FALLBACK_STAFF_IDS", c.Discord.FallbackStaffIDs)
	c.Discord.CheckTimeout = getEnvDuration("DISCORD_CHECK_TIMEOUT", c.Discord.CheckTimeout)
	c.Discord.CacheTTL = getEnvDuration("DISCORD_CACHE_TTL", c.Discord.CacheTTL)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.AuditTopic = getEnv("KAFKA_AUDIT_TOPIC", c.Kafka.AuditTopic)

	c.Guard.RedirectDelay = getEnvDuration("GUARD_REDIRECT_DELAY", c.Guard.RedirectDelay)
	c.Guard.RedirectURL = getEnv("GUARD_REDIRECT_URL", c.Guard.RedirectURL)

	c.App.Dev = getEnvBool("DEV", c.App.Dev)
	c.App.Migrations = getEnvBool("MIGRATIONS", c.App.Migrations)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("LOG_FORMAT", c.App.LogFormat)
	c.App.SeedFile = getEnv("SEED_FILE", c.App.SeedFile)
	c.App.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", c.App.ReconcileInterval)
	c.App.ReconcileBatch = getEnvInt("RECONCILE_BATCH", c.App.ReconcileBatch)
	c.App.ReconcileAttempts = getEnvInt("RECONCILE_MAX_ATTEMPTS", c.App.ReconcileAttempts)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && !c.App.Dev {
		return fmt.Errorf("config: AUTH_JWT_SECRET is required outside dev mode")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Discord.BotToken != "" && (c.Discord.GuildID == "" || c.Discord.StaffRoleID == "") {
		return fmt.Errorf("config: DISCORD_GUILD_ID and DISCORD_STAFF_ROLE_ID are required with a bot token")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

// getEnvDuration parses Go durations ("2500ms") and falls back to
// whole milliseconds for bare integers.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
