// Package config provides configuration loading and management for the discovery server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/site-discovery-server/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables read by the server.
const EnvPrefix = "DISCOVER"

// Environment variables consulted for secrets when no secret file is configured.
const (
	EnvAPIKey           = "DISCOVER_API_KEY"
	EnvDatabasePassword = "DISCOVER_DATABASE_PASSWORD"
	EnvAdminSecret      = "DISCOVER_ADMIN_SECRET"
)

// Defaults applied when a setting is omitted.
const (
	DefaultSyncInterval      = 24 * time.Hour
	DefaultPageDelay         = time.Second
	DefaultPeriodicLockTTL   = 10 * time.Minute
	DefaultBootstrapLockTTL  = time.Hour
	DefaultBootstrapCheckTTL = 5 * time.Minute
	DefaultCacheTTL          = 5 * time.Minute
	DefaultBaseRetryDelay    = 2 * time.Second
	DefaultMaxRetries        = 3
	DefaultBootstrapRetries  = 5
	DefaultSourceTimeout     = 10 * time.Second
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Enabled is the site discovery feature flag. It defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`

	Source SourceConfig `yaml:"source"`
	Sync   *SyncConfig  `yaml:"sync,omitempty"`

	// Database is optional. Without it sites and locks live in process memory.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	Auth      *AuthConfig       `yaml:"auth,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// SourceConfig points at the remote topic listing
type SourceConfig struct {
	// BaseURL is the forum root, e.g. "https://forum.example.com"
	BaseURL string `yaml:"baseUrl"`

	// CategorySlug and CategoryID form the "c/{slug}/{id}" listing path.
	// At least one is required.
	CategorySlug string `yaml:"categorySlug,omitempty"`
	CategoryID   int    `yaml:"categoryId,omitempty"`

	// APIKey and APIUsername are sent as Api-Key/Api-Username when a key is set.
	APIKey      string `yaml:"apiKey,omitempty"`
	APIKeyFile  string `yaml:"apiKeyFile,omitempty"`
	APIUsername string `yaml:"apiUsername,omitempty"`

	// Timeout bounds a single listing request (e.g. "10s")
	Timeout   string `yaml:"timeout,omitempty"`
	UserAgent string `yaml:"userAgent,omitempty"`
}

// SyncConfig tunes the sync loop. Durations use Go syntax ("10m", "24h").
type SyncConfig struct {
	Interval            string `yaml:"interval,omitempty"`
	PageDelay           string `yaml:"pageDelay,omitempty"`
	PeriodicLockTTL     string `yaml:"periodicLockTTL,omitempty"`
	BootstrapLockTTL    string `yaml:"bootstrapLockTTL,omitempty"`
	BootstrapCheckTTL   string `yaml:"bootstrapCheckTTL,omitempty"`
	CacheTTL            string `yaml:"cacheTTL,omitempty"`
	BaseRetryDelay      string `yaml:"baseRetryDelay,omitempty"`
	MaxRetries          *int   `yaml:"maxRetries,omitempty"`
	BootstrapMaxRetries *int   `yaml:"bootstrapMaxRetries,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// Password is the lowest priority password source. Prefer PasswordFile
	// or the DISCOVER_DATABASE_PASSWORD environment variable.
	Password string `yaml:"password,omitempty"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum number of connections in the pool
	MaxConns int32 `yaml:"maxConns,omitempty"`

	// MinConns is the number of connections kept open when idle
	MinConns int32 `yaml:"minConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// AuthConfig protects the administrative endpoints
type AuthConfig struct {
	// AdminSecret is the HMAC key used to verify admin bearer tokens.
	// Without any secret, administrative endpoints reject every request.
	AdminSecret     string `yaml:"adminSecret,omitempty"`
	AdminSecretFile string `yaml:"adminSecretFile,omitempty"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer,omitempty"`
}

// resolveSecret returns the first secret found in file, then environment, then value.
func resolveSecret(file, envVar, value string) (string, error) {
	if file != "" {
		// Use filepath.Clean to prevent path traversal attacks
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if env := os.Getenv(envVar); env != "" {
		return env, nil
	}
	return value, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsEnabled reports the feature flag, defaulting to true.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// GetSync returns the sync section, never nil.
func (c *Config) GetSync() *SyncConfig {
	if c.Sync == nil {
		return &SyncConfig{}
	}
	return c.Sync
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Source.validate(); err != nil {
		return err
	}
	if err := c.GetSync().validate(); err != nil {
		return err
	}
	if c.Database != nil {
		if err := c.Database.validate(); err != nil {
			return err
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("source.baseUrl is required")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("source.baseUrl is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source.baseUrl must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("source.baseUrl must include a host")
	}
	if s.CategorySlug == "" && s.CategoryID <= 0 {
		return fmt.Errorf("source: one of categorySlug or categoryId is required")
	}
	if s.APIUsername != "" && s.APIKey == "" && s.APIKeyFile == "" && os.Getenv(EnvAPIKey) == "" {
		return fmt.Errorf("source.apiUsername requires an API key")
	}
	if err := validateDuration("source.timeout", s.Timeout); err != nil {
		return err
	}
	return nil
}

// GetAPIKey returns the listing API key from apiKeyFile, then
// DISCOVER_API_KEY, then apiKey. An empty key means unauthenticated access.
func (s *SourceConfig) GetAPIKey() (string, error) {
	return resolveSecret(s.APIKeyFile, EnvAPIKey, s.APIKey)
}

// GetTimeout returns the request timeout, defaulting to 10s.
func (s *SourceConfig) GetTimeout() time.Duration {
	return durationOr(s.Timeout, DefaultSourceTimeout)
}

func (s *SyncConfig) validate() error {
	// A zero TTL stores keys without expiry, so lock and cache TTLs must be positive
	durations := []struct {
		name     string
		value    string
		positive bool
	}{
		{"sync.interval", s.Interval, true},
		{"sync.pageDelay", s.PageDelay, false},
		{"sync.periodicLockTTL", s.PeriodicLockTTL, true},
		{"sync.bootstrapLockTTL", s.BootstrapLockTTL, true},
		{"sync.bootstrapCheckTTL", s.BootstrapCheckTTL, true},
		{"sync.cacheTTL", s.CacheTTL, true},
		{"sync.baseRetryDelay", s.BaseRetryDelay, false},
	}
	for _, d := range durations {
		validate := validateDuration
		if d.positive {
			validate = validatePositiveDuration
		}
		if err := validate(d.name, d.value); err != nil {
			return err
		}
	}
	if s.MaxRetries != nil && *s.MaxRetries < 0 {
		return fmt.Errorf("sync.maxRetries must not be negative")
	}
	if s.BootstrapMaxRetries != nil && *s.BootstrapMaxRetries < 0 {
		return fmt.Errorf("sync.bootstrapMaxRetries must not be negative")
	}
	return nil
}

// GetInterval returns the periodic sync interval
func (s *SyncConfig) GetInterval() time.Duration {
	return durationOr(s.Interval, DefaultSyncInterval)
}

// GetPageDelay returns the pause after each non-empty page
func (s *SyncConfig) GetPageDelay() time.Duration {
	return durationOr(s.PageDelay, DefaultPageDelay)
}

// GetPeriodicLockTTL returns the lock TTL of a periodic sync
func (s *SyncConfig) GetPeriodicLockTTL() time.Duration {
	return durationOr(s.PeriodicLockTTL, DefaultPeriodicLockTTL)
}

// GetBootstrapLockTTL returns the lock TTL of a bootstrap sync
func (s *SyncConfig) GetBootstrapLockTTL() time.Duration {
	return durationOr(s.BootstrapLockTTL, DefaultBootstrapLockTTL)
}

// GetBootstrapCheckTTL returns how long the bootstrap advisory flag lives
func (s *SyncConfig) GetBootstrapCheckTTL() time.Duration {
	return durationOr(s.BootstrapCheckTTL, DefaultBootstrapCheckTTL)
}

// GetCacheTTL returns the listing page cache TTL
func (s *SyncConfig) GetCacheTTL() time.Duration {
	return durationOr(s.CacheTTL, DefaultCacheTTL)
}

// GetBaseRetryDelay returns the first rate-limit backoff delay
func (s *SyncConfig) GetBaseRetryDelay() time.Duration {
	return durationOr(s.BaseRetryDelay, DefaultBaseRetryDelay)
}

// GetMaxRetries returns the rate-limit retry budget of a periodic sync
func (s *SyncConfig) GetMaxRetries() int {
	if s.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *s.MaxRetries
}

// GetBootstrapMaxRetries returns the rate-limit retry budget of a bootstrap sync
func (s *SyncConfig) GetBootstrapMaxRetries() int {
	if s.BootstrapMaxRetries == nil {
		return DefaultBootstrapRetries
	}
	return *s.BootstrapMaxRetries
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port <= 0 {
		return fmt.Errorf("database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.MinConns < 0 || d.MaxConns < 0 {
		return fmt.Errorf("database connection limits must not be negative")
	}
	if d.MaxConns > 0 && d.MinConns > d.MaxConns {
		return fmt.Errorf("database.minConns must not exceed database.maxConns")
	}
	return validateDuration("database.connMaxLifetime", d.ConnMaxLifetime)
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from DISCOVER_DATABASE_PASSWORD environment variable
// 3. The Password field
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	password, err := resolveSecret(d.PasswordFile, EnvDatabasePassword, d.Password)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf(
			"no database password configured: set passwordFile, password or %s", EnvDatabasePassword,
		)
	}
	return password, nil
}

// GetSSLMode returns the SSL mode, defaulting to "require".
func (d *DatabaseConfig) GetSSLMode() string {
	if d.SSLMode == "" {
		return "require"
	}
	return d.SSLMode
}

// GetConnMaxLifetime returns the connection lifetime, zero when unset.
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return durationOr(d.ConnMaxLifetime, 0)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + url.QueryEscape(d.GetSSLMode()),
	}
	return u.String(), nil
}

// GetAdminSecret returns the admin token key from adminSecretFile, then
// DISCOVER_ADMIN_SECRET, then adminSecret. A nil config yields "".
func (a *AuthConfig) GetAdminSecret() (string, error) {
	if a == nil {
		return resolveSecret("", EnvAdminSecret, "")
	}
	return resolveSecret(a.AdminSecretFile, EnvAdminSecret, a.AdminSecret)
}

func validateDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

func validatePositiveDuration(name, value string) error {
	if err := validateDuration(name, value); err != nil || value == "" {
		return err
	}
	if d, _ := time.ParseDuration(value); d == 0 {
		return fmt.Errorf("%s must be greater than zero", name)
	}
	return nil
}

// durationOr parses value, falling back to def when empty or invalid.
// Validate rejects invalid values before getters run.
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
