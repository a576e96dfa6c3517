// Package config loads relay configuration from a YAML file with
// environment-variable overrides, following the same
// defaults-then-file-then-env layering the rest of this stack uses.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Relay   RelayConfig    `yaml:"relay"`
	Redis   RedisConfig    `yaml:"redis"`
	PG      PostgresConfig `yaml:"postgres"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Port               string   `yaml:"port"`
	ReadTimeoutSec     int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec    int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec     int      `yaml:"idle_timeout_sec"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins   []string `yaml:"cors_allow_origins"`
}

// RelayConfig holds the admission scheme's process-wide tunables.
type RelayConfig struct {
	HMACSecret      string `yaml:"hmac_secret"`
	MaxClockSkewSec int64  `yaml:"max_clock_skew_sec"`
	NonceTTLSec     int    `yaml:"nonce_ttl_sec"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig is optional: when DSN is empty, admission decisions are
// not audited to durable storage.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeoutSec:     10,
			WriteTimeoutSec:    10,
			IdleTimeoutSec:     120,
			ShutdownTimeoutSec: 15,
		},
		Relay: RelayConfig{
			MaxClockSkewSec: 60,
			NonceTTLSec:     120,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path (if present), applies environment overrides, and fills
// in defaults for anything still unset. A missing config file is not an
// error — it just means defaults + env apply.
func Load(path string) *Config {
	_ = godotenv.Load() // .env is optional; ignore a missing file

	cfg := defaults()
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("config: failed to parse file, using defaults+env", "path", path, "error", err)
		}
	} else {
		slog.Info("config: no config file found, using defaults+env", "path", path)
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("RELAY_PORT", c.Server.Port)
	if v := getEnvInt("RELAY_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("RELAY_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("RELAY_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("RELAY_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeoutSec = v
	}
	if origins := getEnv("RELAY_CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	c.Relay.HMACSecret = getEnv("RELAY_HMAC_SECRET", c.Relay.HMACSecret)
	if v := getEnvInt64("RELAY_MAX_CLOCK_SKEW_SEC", 0); v > 0 {
		c.Relay.MaxClockSkewSec = v
	}
	if v := getEnvInt("RELAY_NONCE_TTL_SEC", 0); v > 0 {
		c.Relay.NonceTTLSec = v
	}

	c.Redis.Enabled = getEnvBool("RELAY_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("RELAY_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("RELAY_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("RELAY_REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}

	c.PG.DSN = getEnv("RELAY_POSTGRES_DSN", c.PG.DSN)

	c.Metrics.Enabled = getEnvBool("RELAY_METRICS_ENABLED", c.Metrics.Enabled)
}

// NonceTTL returns the configured nonce replay window as a time.Duration.
func (c *Config) NonceTTL() time.Duration {
	return time.Duration(c.Relay.NonceTTLSec) * time.Second
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
