// Package config loads service configuration from a YAML file and
// environment variables, env taking precedence. Env keys use the SRH prefix
// with underscores, e.g. SRH_SERVER_HTTP_PORT.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	InstanceID string         `mapstructure:"instance_id"`
	Server     ServerConfig   `mapstructure:"server"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Queue      QueueConfig    `mapstructure:"queue"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Log        LogConfig      `mapstructure:"log"`
}

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PostgresConfig locates the request store. An empty DSN selects the
// in-memory store, which suits single-instance dev deployments.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig locates the change-notification transport.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig tunes the reconciliation core.
type QueueConfig struct {
	GraceWindow        time.Duration `mapstructure:"grace_window"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	SubmitMaxAttempts  int           `mapstructure:"submit_max_attempts"`
	PurgeCron          string        `mapstructure:"purge_cron"`
	PurgeRetentionDays int           `mapstructure:"purge_retention_days"`
	MaxWSConnections   int           `mapstructure:"max_ws_connections"`
	SubmitPerSec       float64       `mapstructure:"submit_per_sec"`
	SubmitBurst        int           `mapstructure:"submit_burst"`
	VotePerSec         float64       `mapstructure:"vote_per_sec"`
	VoteBurst          int           `mapstructure:"vote_burst"`
}

// AuthConfig holds operator authentication settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig tunes logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from configPath (optional) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SRH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional when env carries everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance_id", "songrequest-1")

	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.grace_window", 1500*time.Millisecond)
	v.SetDefault("queue.poll_interval", 2*time.Second)
	v.SetDefault("queue.submit_max_attempts", 3)
	v.SetDefault("queue.purge_cron", "0 4 * * *")
	v.SetDefault("queue.purge_retention_days", 7)
	v.SetDefault("queue.max_ws_connections", 2000)
	v.SetDefault("queue.submit_per_sec", 1.0)
	v.SetDefault("queue.submit_burst", 5)
	v.SetDefault("queue.vote_per_sec", 2.0)
	v.SetDefault("queue.vote_burst", 10)

	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("log.level", "info")
}

func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", cfg.Server.HTTPPort)
	}
	if cfg.Queue.GraceWindow <= 0 {
		return fmt.Errorf("queue.grace_window must be positive")
	}
	if cfg.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}
	if cfg.Queue.PurgeRetentionDays < 0 {
		return fmt.Errorf("queue.purge_retention_days must not be negative")
	}
	return nil
}
