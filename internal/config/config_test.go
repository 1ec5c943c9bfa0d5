package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storefront/internal/transport"
)

// clearEnv unsets every recognized key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CATALOG_BASE_URL", "http://10.0.0.5:8082/")
	t.Setenv("CATALOG_API_VERSION", "v1.3.0")
	t.Setenv("CATALOG_TLS_FINGERPRINT", "chrome")
	t.Setenv("SEARCH_DEBOUNCE", "250ms")
	t.Setenv("DISCARD_STALE_SEARCHES", "true")
	t.Setenv("CURRENCY", "inr")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if got := cfg.Catalog.Endpoint(); got != "http://10.0.0.5:8082/api/v1" {
		t.Errorf("Endpoint() = %s, want http://10.0.0.5:8082/api/v1", got)
	}
	if cfg.Catalog.Fingerprint != transport.FingerprintChrome {
		t.Errorf("Fingerprint = %s, want chrome", cfg.Catalog.Fingerprint)
	}
	if cfg.Search.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Search.Debounce)
	}
	if !cfg.Search.DiscardStale {
		t.Error("DiscardStale = false, want true")
	}
	if cfg.Currency != "INR" {
		t.Errorf("Currency = %s, want INR", cfg.Currency)
	}
	if !cfg.Cache.Enabled() || cfg.Cache.RedisDB != 2 {
		t.Errorf("Cache = %+v, want enabled on db 2", cfg.Cache)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_BASE_URL", "http://localhost:8082")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Search.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", cfg.Search.Debounce)
	}
	if cfg.Search.Timeout != 0 {
		t.Errorf("Search.Timeout = %v, want 0", cfg.Search.Timeout)
	}
	if cfg.Search.DiscardStale {
		t.Error("DiscardStale = true, want false")
	}
	if cfg.Catalog.Fingerprint != transport.FingerprintGo {
		t.Errorf("Fingerprint = %s, want go", cfg.Catalog.Fingerprint)
	}
	if cfg.Catalog.Endpoint() != "http://localhost:8082/api/v1" {
		t.Errorf("Endpoint() = %s", cfg.Catalog.Endpoint())
	}
	if cfg.Cache.Enabled() {
		t.Error("Cache.Enabled() = true, want false without REDIS_ADDR")
	}
	if cfg.MaxSessions != 1000 {
		t.Errorf("MaxSessions = %d, want 1000", cfg.MaxSessions)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing base url",
			env:     map[string]string{},
			wantErr: "catalog_base_url is required",
		},
		{
			name:    "base url without scheme",
			env:     map[string]string{"CATALOG_BASE_URL": "localhost:8082"},
			wantErr: "catalog_base_url",
		},
		{
			name:    "bad api version",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "CATALOG_API_VERSION": "latest"},
			wantErr: "not a semantic version",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "SEARCH_DEBOUNCE": "soon"},
			wantErr: "SEARCH_DEBOUNCE",
		},
		{
			name:    "zero debounce",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "SEARCH_DEBOUNCE": "0s"},
			wantErr: "search_debounce must be positive",
		},
		{
			name:    "unknown fingerprint",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "CATALOG_TLS_FINGERPRINT": "firefox"},
			wantErr: "CATALOG_TLS_FINGERPRINT",
		},
		{
			name:    "unknown currency",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "CURRENCY": "ZZZ"},
			wantErr: "currency",
		},
		{
			name:    "bad bool",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "DISCARD_STALE_SEARCHES": "maybe"},
			wantErr: "DISCARD_STALE_SEARCHES",
		},
		{
			name:    "production without project",
			env:     map[string]string{"CATALOG_BASE_URL": "http://c", "ENVIRONMENT": "production"},
			wantErr: "GCP_PROJECT required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatalf("Load() error = nil, want containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "config.json",
			content: `{
				"port": "7070",
				"catalog_base_url": "https://catalog.example.com",
				"catalog_api_version": "2",
				"search_debounce": "300ms",
				"max_sessions": 50,
				"discard_stale_searches": true
			}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
port: "7070"
catalog_base_url: https://catalog.example.com
catalog_api_version: "2"
search_debounce: 300ms
max_sessions: 50
discard_stale_searches: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			t.Setenv("CONFIG_FILE", path)
			// Env vars are ignored when CONFIG_FILE is set
			t.Setenv("PORT", "9999")

			cfg, err := Load(context.Background())
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}

			if cfg.Port != "7070" {
				t.Errorf("Port = %s, want 7070", cfg.Port)
			}
			if cfg.Catalog.Endpoint() != "https://catalog.example.com/api/v2" {
				t.Errorf("Endpoint() = %s, want https://catalog.example.com/api/v2", cfg.Catalog.Endpoint())
			}
			if cfg.Search.Debounce != 300*time.Millisecond {
				t.Errorf("Debounce = %v, want 300ms", cfg.Search.Debounce)
			}
			if cfg.MaxSessions != 50 {
				t.Errorf("MaxSessions = %d, want 50", cfg.MaxSessions)
			}
			if !cfg.Search.DiscardStale {
				t.Error("DiscardStale = false, want true")
			}
		})
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := Load(context.Background()); err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load(missing) error = %v, want reading error", err)
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	os.WriteFile(path, []byte(`{"port":`), 0o600)
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(context.Background()); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load(broken) error = %v, want parsing error", err)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	tests := []struct {
		base, version, want string
	}{
		{"http://c:8082", "v1", "http://c:8082/api/v1"},
		{"http://c:8082/", "v1.2.3", "http://c:8082/api/v1"},
		{"https://c", "v3.0.0-beta", "https://c/api/v3"},
	}

	for _, tt := range tests {
		got := CatalogConfig{BaseURL: tt.base, APIVersion: tt.version}.Endpoint()
		if got != tt.want {
			t.Errorf("Endpoint(%s, %s) = %s, want %s", tt.base, tt.version, got, tt.want)
		}
	}
}
