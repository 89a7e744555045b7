package config

import (
	"encoding/hex"
	"os"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// ApplyEnvOverrides
// ---------------------------------------------------------------------------

func Test_ApplyEnvOverrides_Cases(t *testing.T) {
	vars := []string{
		"FLOWS_SPACELIFT_AUTH_TOKEN",
		"SPACELIFT_API_KEY_ID",
		"SPACELIFT_API_KEY_SECRET",
		"SPACELIFT_API_ENDPOINT",
		"FLOWS_SPACELIFT_REDIS_ADDR",
		"FLOWS_SPACELIFT_LOG_LEVEL",
	}

	tests := []struct {
		name     string
		env      map[string]string
		initial  func() *Config
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "token env set on empty config",
			env:     map[string]string{"FLOWS_SPACELIFT_AUTH_TOKEN": "my-token"},
			initial: func() *Config { return &Config{} },
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "my-token" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "my-token")
				}
			},
		},
		{
			name: "empty env does not override existing values",
			env:  map[string]string{"FLOWS_SPACELIFT_AUTH_TOKEN": "", "SPACELIFT_API_KEY_ID": ""},
			initial: func() *Config {
				return &Config{
					Server:    ServerConfig{AuthToken: "existing"},
					Spacelift: SpaceliftConfig{APIKeyID: "kept"},
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "existing" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "existing")
				}
				if cfg.Spacelift.APIKeyID != "kept" {
					t.Errorf("APIKeyID = %q, want %q", cfg.Spacelift.APIKeyID, "kept")
				}
			},
		},
		{
			name: "spacelift credentials are overridden",
			env: map[string]string{
				"SPACELIFT_API_KEY_ID":     "env-id",
				"SPACELIFT_API_KEY_SECRET": "env-secret",
				"SPACELIFT_API_ENDPOINT":   "env.app.spacelift.io",
			},
			initial: func() *Config {
				return &Config{Spacelift: SpaceliftConfig{APIKeyID: "old", Timeout: 12}}
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				want := SpaceliftConfig{
					APIKeyID:     "env-id",
					APIKeySecret: "env-secret",
					Endpoint:     "env.app.spacelift.io",
					Timeout:      12,
				}
				if cfg.Spacelift != want {
					t.Errorf("Spacelift = %+v, want %+v", cfg.Spacelift, want)
				}
			},
		},
		{
			name: "redis address selects redis driver",
			env:  map[string]string{"FLOWS_SPACELIFT_REDIS_ADDR": "redis:6379"},
			initial: func() *Config {
				return DefaultConfig()
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Cache.Driver != "redis" {
					t.Errorf("Cache.Driver = %q, want redis", cfg.Cache.Driver)
				}
				if cfg.Cache.Redis.Addr != "redis:6379" {
					t.Errorf("Cache.Redis.Addr = %q, want redis:6379", cfg.Cache.Redis.Addr)
				}
			},
		},
		{
			name: "log level override leaves other fields unchanged",
			env:  map[string]string{"FLOWS_SPACELIFT_LOG_LEVEL": "debug"},
			initial: func() *Config {
				return &Config{Server: ServerConfig{Port: 9090}, Log: LogConfig{Level: "info", Format: "console"}}
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
					t.Errorf("Log = %+v, want debug/console", cfg.Log)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("Port = %d, want 9090", cfg.Server.Port)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Register cleanup via t.Setenv, then remove every variable the
			// case does not set so os.Getenv returns "".
			for _, v := range vars {
				t.Setenv(v, "")
				os.Unsetenv(v)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := tt.initial()
			ApplyEnvOverrides(cfg)
			tt.validate(t, cfg)
		})
	}
}

// ---------------------------------------------------------------------------
// EnsureAuthToken
// ---------------------------------------------------------------------------

func Test_EnsureAuthToken_Cases(t *testing.T) {
	t.Run("token already set returns existing token unchanged", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "pre-set",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "pre-set" {
			t.Errorf("returned token = %q, want %q", token, "pre-set")
		}
		if cfg.Server.AuthToken != "pre-set" {
			t.Errorf("cfg.Server.AuthToken = %q, want %q", cfg.Server.AuthToken, "pre-set")
		}
	})

	t.Run("empty token generates and sets new token", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token == "" {
			t.Fatal("returned token is empty, expected a generated value")
		}
		if cfg.Server.AuthToken != token {
			t.Errorf("cfg.Server.AuthToken = %q, want %q (returned token)", cfg.Server.AuthToken, token)
		}
	})

	t.Run("generated token is 32 characters", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(token) != 32 {
			t.Errorf("len(token) = %d, want 32", len(token))
		}
	})

	t.Run("generated token is valid hex", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		decoded, err := hex.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not valid hex: %v", token, err)
		}
		if len(decoded) != 16 {
			t.Errorf("decoded length = %d, want 16 bytes", len(decoded))
		}
	})

	t.Run("two calls produce different tokens", func(t *testing.T) {
		cfg1 := &Config{Server: ServerConfig{AuthToken: ""}}
		cfg2 := &Config{Server: ServerConfig{AuthToken: ""}}

		token1, err := EnsureAuthToken(cfg1)
		if err != nil {
			t.Fatalf("first call error: %v", err)
		}

		token2, err := EnsureAuthToken(cfg2)
		if err != nil {
			t.Fatalf("second call error: %v", err)
		}

		if token1 == token2 {
			t.Errorf("two generated tokens are identical: %q", token1)
		}
	})
}

// ---------------------------------------------------------------------------
// GenerateRandomToken
// ---------------------------------------------------------------------------

func Test_GenerateRandomToken_Cases(t *testing.T) {
	t.Run("returns 32 character string", func(t *testing.T) {
		token, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(token) != 32 {
			t.Errorf("len(token) = %d, want 32", len(token))
		}
	})

	t.Run("output is valid hex encoding 16 bytes", func(t *testing.T) {
		token, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		decoded, err := hex.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not valid hex: %v", token, err)
		}
		if len(decoded) != 16 {
			t.Errorf("decoded byte length = %d, want 16", len(decoded))
		}
	})

	t.Run("two calls return different values", func(t *testing.T) {
		token1, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("first call error: %v", err)
		}

		token2, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("second call error: %v", err)
		}

		if token1 == token2 {
			t.Errorf("two generated tokens are identical: %q", token1)
		}
	})

	t.Run("concurrent calls all succeed with unique tokens", func(t *testing.T) {
		const goroutines = 100

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			tokens = make(map[string]struct{}, goroutines)
			errs   []error
		)

		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				token, err := GenerateRandomToken()
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				tokens[token] = struct{}{}
			}()
		}
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("got %d errors in concurrent calls; first: %v", len(errs), errs[0])
		}

		if len(tokens) != goroutines {
			t.Errorf("expected %d unique tokens, got %d (collisions detected)", goroutines, len(tokens))
		}
	})
}
