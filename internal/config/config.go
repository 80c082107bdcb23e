package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Auth     Auth     `yaml:"auth"`
	Log      Log      `yaml:"log"`
	Socket   Socket   `yaml:"socket"`
}

type Server struct {
	Port string `yaml:"port"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Redis enables the cross-instance event relay when Addr is set.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

type Auth struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Socket struct {
	SendBuffer int `yaml:"send_buffer"`
}

func Default() *Config {
	return &Config{
		Server: Server{Port: "8000"},
		Redis:  Redis{Channel: "forum:events"},
		Auth:   Auth{Secret: "dev-secret", TokenTTL: 24 * time.Hour},
		Log:    Log{Level: "info"},
		Socket: Socket{SendBuffer: 256},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not an error.
// FORUM_* environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Socket.SendBuffer <= 0 {
		return errors.New("socket.send_buffer must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	envString("FORUM_PORT", &cfg.Server.Port)
	envString("FORUM_POSTGRES_DSN", &cfg.Postgres.DSN)
	envString("FORUM_REDIS_ADDR", &cfg.Redis.Addr)
	envString("FORUM_REDIS_PASSWORD", &cfg.Redis.Password)
	envString("FORUM_AUTH_SECRET", &cfg.Auth.Secret)
	envString("FORUM_LOG_LEVEL", &cfg.Log.Level)
	if v := os.Getenv("FORUM_AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("FORUM_LOG_DEVELOPMENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Development = b
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
