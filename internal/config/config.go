// Package config loads runtime settings from .env, the environment, an
// optional config file and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Session  SessionConfig
	Feed     FeedConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port      string
	StaticDir string
}

type DatabaseConfig struct {
	URL string
}

type CORSConfig struct {
	Origin string
}

type SessionConfig struct {
	TTL time.Duration
}

type FeedConfig struct {
	TrendingDays int
}

type LogConfig struct {
	Level       string
	Development bool
}

// envBinding ties a viper key to its environment variable.
type envBinding struct {
	key string
	env string
}

var envBindings = []envBinding{
	{"server.port", "PORT"},
	{"server.static_dir", "STATIC_DIR"},
	{"database.url", "DATABASE_URL"},
	{"cors.origin", "CORS_ORIGIN"},
	{"session.ttl", "SESSION_TTL"},
	{"feed.trending_days", "TRENDING_DAYS"},
	{"log.level", "LOG_LEVEL"},
	{"log.development", "LOG_DEVELOPMENT"},
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.static_dir", "./public")
	v.SetDefault("database.url", "sqlite://confessly.db")
	v.SetDefault("cors.origin", "*")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("feed.trending_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadDotEnv loads a .env file if present. A missing file is not an error,
// so production can set variables directly.
func LoadDotEnv(paths ...string) (bool, error) {
	if err := godotenv.Load(paths...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load .env: %w", err)
	}
	return true, nil
}

// Load builds a Config from v. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			StaticDir: v.GetString("server.static_dir"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		CORS:     CORSConfig{Origin: v.GetString("cors.origin")},
		Session:  SessionConfig{TTL: v.GetDuration("session.ttl")},
		Feed:     FeedConfig{TrendingDays: v.GetInt("feed.trending_days")},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port == "" {
		problems = append(problems, "server.port must be set")
	}
	if !strings.HasPrefix(c.Database.URL, "sqlite://") && !strings.HasPrefix(c.Database.URL, "postgres://") {
		problems = append(problems, "database.url must start with 'postgres://' or 'sqlite://'")
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "session.ttl must be positive")
	}
	if c.Feed.TrendingDays <= 0 {
		problems = append(problems, "feed.trending_days must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
