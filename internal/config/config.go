// Package config handles loading and validation of service configuration.
// Supports both development (env vars or a config file) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/mod/semver"
	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"

	"storefront/internal/search"
	"storefront/internal/transport"
)

// DefaultSecretName is the Secret Manager secret read in production when
// SECRET_NAME is unset.
const DefaultSecretName = "storefront-config"

// Config holds all service configuration.
// Environment determines whether catalog and cache settings may come from
// Secret Manager (production) or only from env vars (development).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	Catalog CatalogConfig
	Search  SearchConfig
	Cache   CacheConfig

	// Currency is the ISO 4217 code used to format totals.
	Currency string

	// MaxSessions bounds the number of live storefront views.
	MaxSessions int
}

// CatalogConfig locates the remote catalog service.
type CatalogConfig struct {
	BaseURL     string
	APIVersion  string // semver, e.g. "v1" or "v1.4.0"
	Timeout     time.Duration
	Fingerprint transport.Fingerprint
}

// Endpoint returns the versioned API root, e.g. "http://host:8082/api/v1".
// Only the major version appears in the path.
func (c CatalogConfig) Endpoint() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/api/" + semver.Major(c.APIVersion)
}

// SearchConfig tunes the search debouncer.
type SearchConfig struct {
	Debounce     time.Duration
	Timeout      time.Duration // 0 disables the per-search timeout
	DiscardStale bool
}

// CacheConfig configures the optional Redis catalog cache.
type CacheConfig struct {
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	Prefix        string
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// keys lists every recognized setting. Env vars use these names directly;
// config files and the production secret use their lower-case form.
var keys = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL",
	"GCP_PROJECT", "SECRET_NAME",
	"CATALOG_BASE_URL", "CATALOG_API_VERSION", "CATALOG_TIMEOUT", "CATALOG_TLS_FINGERPRINT",
	"SEARCH_DEBOUNCE", "SEARCH_TIMEOUT", "DISCARD_STALE_SEARCHES",
	"CURRENCY", "MAX_SESSIONS",
	"REDIS_ADDR", "REDIS_USERNAME", "REDIS_PASSWORD", "REDIS_DB",
	"CACHE_TTL", "CACHE_PREFIX",
}

// secretKeys may be supplied by the production secret.
var secretKeys = map[string]bool{
	"CATALOG_BASE_URL":        true,
	"CATALOG_API_VERSION":     true,
	"CATALOG_TLS_FINGERPRINT": true,
	"REDIS_ADDR":              true,
	"REDIS_USERNAME":          true,
	"REDIS_PASSWORD":          true,
	"REDIS_DB":                true,
}

// values is a flat set of raw settings keyed by env var name.
type values map[string]string

func (v values) get(key, defaultVal string) string {
	if val := v[key]; val != "" {
		return val
	}
	return defaultVal
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars, overlaid with Secret Manager in
// production. Validates all fields and returns an error if any are invalid.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		v, err := readFile(configPath)
		if err != nil {
			return nil, err
		}
		return parse(v)
	}

	v := make(values, len(keys))
	for _, k := range keys {
		v[k] = os.Getenv(k)
	}

	if v.get("ENVIRONMENT", "development") == "production" {
		if v["GCP_PROJECT"] == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		secret, err := loadSecret(ctx, v["GCP_PROJECT"], v.get("SECRET_NAME", DefaultSecretName))
		if err != nil {
			return nil, fmt.Errorf("loading catalog config: %w", err)
		}
		for k, val := range secret {
			if secretKeys[k] {
				v[k] = val
			}
		}
	}

	return parse(v)
}

// readFile reads a flat JSON or YAML document (chosen by extension) of
// lower-case setting names, e.g. {"catalog_base_url": "http://localhost:8082"}.
func readFile(path string) (values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return flatten(raw), nil
}

// flatten normalizes decoded scalars to strings keyed by env var name.
func flatten(raw map[string]any) values {
	v := make(values, len(raw))
	for k, val := range raw {
		if val == nil {
			continue
		}
		v[strings.ToUpper(k)] = fmt.Sprint(val)
	}
	return v
}

// loadSecret fetches settings from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func loadSecret(ctx context.Context, project, name string) (values, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, name)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	raw := map[string]any{}
	if err := json.Unmarshal(result.Payload.Data, &raw); err != nil {
		return nil, fmt.Errorf("parsing secret JSON: %w", err)
	}
	return flatten(raw), nil
}

// parse converts raw settings into a validated Config.
func parse(v values) (*Config, error) {
	cfg := &Config{
		Port:        v.get("PORT", "8080"),
		Environment: v.get("ENVIRONMENT", "development"),
		LogLevel:    v.get("LOG_LEVEL", "info"),
		GCPProject:  v["GCP_PROJECT"],
		SecretName:  v.get("SECRET_NAME", DefaultSecretName),
		Currency:    strings.ToUpper(v.get("CURRENCY", "USD")),
		Catalog: CatalogConfig{
			BaseURL:    v["CATALOG_BASE_URL"],
			APIVersion: v.get("CATALOG_API_VERSION", "v1"),
		},
		Cache: CacheConfig{
			RedisAddr:     v["REDIS_ADDR"],
			RedisUsername: v["REDIS_USERNAME"],
			RedisPassword: v["REDIS_PASSWORD"],
			Prefix:        v.get("CACHE_PREFIX", "storefront:"),
		},
	}

	var err error
	if cfg.Catalog.Fingerprint, err = transport.ParseFingerprint(v["CATALOG_TLS_FINGERPRINT"]); err != nil {
		return nil, fmt.Errorf("CATALOG_TLS_FINGERPRINT: %w", err)
	}
	if cfg.Catalog.Timeout, err = duration(v, "CATALOG_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Search.Debounce, err = duration(v, "SEARCH_DEBOUNCE", search.DefaultWindow); err != nil {
		return nil, err
	}
	if cfg.Search.Timeout, err = duration(v, "SEARCH_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = duration(v, "CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Search.DiscardStale, err = boolean(v, "DISCARD_STALE_SEARCHES"); err != nil {
		return nil, err
	}
	if cfg.MaxSessions, err = integer(v, "MAX_SESSIONS", 1000); err != nil {
		return nil, err
	}
	if cfg.Cache.RedisDB, err = integer(v, "REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog_base_url is required")
	}
	u, err := url.Parse(c.Catalog.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid catalog_base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("catalog_base_url must be http or https, got %q", c.Catalog.BaseURL)
	}

	// Accept "1" as shorthand for "v1"
	if !strings.HasPrefix(c.Catalog.APIVersion, "v") {
		c.Catalog.APIVersion = "v" + c.Catalog.APIVersion
	}
	if !semver.IsValid(c.Catalog.APIVersion) {
		return fmt.Errorf("catalog_api_version %q is not a semantic version", c.Catalog.APIVersion)
	}

	if _, err := currency.ParseISO(c.Currency); err != nil {
		return fmt.Errorf("currency %q: %w", c.Currency, err)
	}
	if c.Search.Debounce <= 0 {
		return fmt.Errorf("search_debounce must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive")
	}
	return nil
}

func duration(v values, key string, defaultVal time.Duration) (time.Duration, error) {
	raw := v[key]
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func integer(v values, key string, defaultVal int) (int, error) {
	raw := v[key]
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolean(v values, key string) (bool, error) {
	raw := v[key]
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
