// Package config provides configuration loading and defaults for the
// flows-spacelift server and CLI.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResourceFilter holds allowlist and denylist entries for a resource category.
type ResourceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig groups the guards applied to stack creation.
type SafetyConfig struct {
	Blueprints ResourceFilter `yaml:"blueprints"`
	// ConfirmCreate requires a confirmation round-trip before a stack is
	// created through the MCP tool.
	ConfirmCreate bool `yaml:"confirm_create"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// SpaceliftConfig holds the API key and endpoint of the Spacelift account.
type SpaceliftConfig struct {
	APIKeyID     string `yaml:"api_key_id"`
	APIKeySecret string `yaml:"api_key_secret"`
	// Endpoint is the account hostname, e.g. acme.app.spacelift.io.
	Endpoint string `yaml:"endpoint"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// AppConfig returns the untyped app-level configuration mapping the blocks
// extract their credentials from. Empty fields are left out.
func (s SpaceliftConfig) AppConfig() map[string]any {
	m := make(map[string]any, 3)
	if s.APIKeyID != "" {
		m["apiKeyId"] = s.APIKeyID
	}
	if s.APIKeySecret != "" {
		m["apiKeySecret"] = s.APIKeySecret
	}
	if s.Endpoint != "" {
		m["endpoint"] = s.Endpoint
	}
	return m
}

// RedisConfig captures redis connection options for the token cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig selects and tunes the token cache backend.
type CacheConfig struct {
	// Driver is either "memory" or "redis".
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis"`
	// NumCounters and MaxCost size the memory driver. Each token costs 1,
	// so MaxCost is the number of tokens kept.
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Spacelift SpaceliftConfig `yaml:"spacelift"`
	Cache     CacheConfig     `yaml:"cache"`
	Safety    SafetyConfig    `yaml:"safety"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Fields missing from the file keep their DefaultConfig values.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Spacelift: SpaceliftConfig{
			Timeout: 30,
		},
		Cache: CacheConfig{
			Driver:      "memory",
			NumCounters: 100_000,
			MaxCost:     10_000,
			Redis: RedisConfig{
				Prefix: "flows-spacelift:",
			},
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - FLOWS_SPACELIFT_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - SPACELIFT_API_KEY_ID overrides cfg.Spacelift.APIKeyID
//   - SPACELIFT_API_KEY_SECRET overrides cfg.Spacelift.APIKeySecret
//   - SPACELIFT_API_ENDPOINT overrides cfg.Spacelift.Endpoint
//   - FLOWS_SPACELIFT_REDIS_ADDR overrides cfg.Cache.Redis.Addr and selects
//     the redis driver
//   - FLOWS_SPACELIFT_LOG_LEVEL overrides cfg.Log.Level
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("FLOWS_SPACELIFT_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if id := os.Getenv("SPACELIFT_API_KEY_ID"); id != "" {
		cfg.Spacelift.APIKeyID = id
	}
	if secret := os.Getenv("SPACELIFT_API_KEY_SECRET"); secret != "" {
		cfg.Spacelift.APIKeySecret = secret
	}
	if endpoint := os.Getenv("SPACELIFT_API_ENDPOINT"); endpoint != "" {
		cfg.Spacelift.Endpoint = endpoint
	}
	if addr := os.Getenv("FLOWS_SPACELIFT_REDIS_ADDR"); addr != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = addr
	}
	if level := os.Getenv("FLOWS_SPACELIFT_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
