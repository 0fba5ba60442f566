// Package config loads runtime configuration from file and environment.
// Precedence: environment (GOATCHAT_*), then config file, then defaults.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Runner   RunnerConfig   `mapstructure:"runner"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env string `mapstructure:"env"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig enables the cross-instance event bridge when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ChatConfig tunes the session engine.
type ChatConfig struct {
	AITurnTimeout time.Duration `mapstructure:"ai_turn_timeout"`
	TypingTTL     time.Duration `mapstructure:"typing_ttl"`
}

// RunnerConfig tunes background tasks.
type RunnerConfig struct {
	SessionReaper SessionReaperConfig `mapstructure:"session_reaper"`
}

// SessionReaperConfig controls the stale ai_active session reaper.
type SessionReaperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

var (
	mu     sync.RWMutex
	global *Config
)

// Load reads configuration from the given file (optional) plus environment
// and stores it as the process-wide config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOATCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	global = &cfg
	mu.Unlock()
	return &cfg, nil
}

// Get returns the loaded config, or nil before Load.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Set replaces the global config. Tests only.
func Set(cfg *Config) {
	mu.Lock()
	global = cfg
	mu.Unlock()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "goatchat.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("chat.ai_turn_timeout", 10*time.Second)
	v.SetDefault("chat.typing_ttl", 3*time.Second)
	v.SetDefault("runner.session_reaper.enabled", true)
	v.SetDefault("runner.session_reaper.interval", 5*time.Minute)
	v.SetDefault("runner.session_reaper.max_age", 24*time.Hour)
}
