package config

import (
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.DSN
// ---------------------------------------------------------------------------

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Name:     "medtrack",
				User:     "medtrack",
				Password: "secret",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 dbname=medtrack user=medtrack password=secret sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.example.com",
				Port:    5433,
				Name:    "inventory",
				User:    "app",
				SSLMode: "disable",
			},
			want: "host=db.example.com port=5433 dbname=inventory user=app password= sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080},
		Database:  DatabaseConfig{Host: "localhost", Name: "medtrack"},
		Audit:     AuditConfig{ExportMaxRows: 50000},
		RateLimit: RateLimitConfig{Backend: "memory"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("invalid server port 70000", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 70000, got nil")
		}
	})

	t.Run("missing database name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Name = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database name, got nil")
		}
	})

	t.Run("export row cap must be positive", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.ExportMaxRows = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for export_max_rows 0, got nil")
		}
	})

	t.Run("unknown rate limit backend", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.RateLimit.Backend = "memcached"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for unknown backend, got nil")
		}
	})

	t.Run("redis backend requires addr", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.RateLimit.Backend = "redis"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for redis backend without addr, got nil")
		}
		cfg.RateLimit.RedisAddr = "localhost:6379"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error with redis addr set: %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("default database host = %q, want localhost", cfg.Database.Host)
	}
	if cfg.Auth.TokenExpiry != 8*time.Hour {
		t.Errorf("default token expiry = %v, want 8h", cfg.Auth.TokenExpiry)
	}
	if cfg.Audit.ExportMaxRows != 50000 {
		t.Errorf("default export_max_rows = %d, want 50000", cfg.Audit.ExportMaxRows)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Errorf("default rate limit backend = %q, want memory", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.APIRequestsPerMinute != 100 {
		t.Errorf("default api_requests_per_minute = %d, want 100", cfg.RateLimit.APIRequestsPerMinute)
	}
	if cfg.RateLimit.LoginMaxAttempts != 5 || cfg.RateLimit.LoginWindow != 15*time.Minute {
		t.Errorf("default login limits = %d/%v, want 5/15m",
			cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.LoginWindow)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
database:
  host: "dbhost"
  name: "testdb"
logging:
  level: "debug"
audit:
  export_max_rows: 1000
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("Database.Name = %q, want testdb", cfg.Database.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Audit.ExportMaxRows != 1000 {
		t.Errorf("Audit.ExportMaxRows = %d, want 1000", cfg.Audit.ExportMaxRows)
	}
	// Settings the file omits keep their defaults.
	if cfg.Database.Port != 5432 {
		t.Errorf("default Database.Port = %d, want 5432", cfg.Database.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

// ---------------------------------------------------------------------------
// SecurityConfig.EncryptionPassphrase
// ---------------------------------------------------------------------------

func TestEncryptionPassphrase(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "hunter2")
	s := SecurityConfig{}
	if got := s.EncryptionPassphrase(); got != "hunter2" {
		t.Errorf("EncryptionPassphrase() = %q, want hunter2", got)
	}
}
