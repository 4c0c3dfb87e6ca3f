package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/scubapro711/youtube-autopilot/internal/authn"
	"github.com/scubapro711/youtube-autopilot/internal/credstore"
	"github.com/scubapro711/youtube-autopilot/internal/method"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the storage backends supported for credentials.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeKeyring StorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat        = LogFormatText
	DefaultConfigStorage          = StorageTypeFile
	DefaultConfigKeyringService   = "youtube-autopilot"
	DefaultConfigConsentSeconds   = 300
	DefaultConfigAttemptSeconds   = 30
	DefaultConfigRetryAttempts    = 3
	DefaultConfigRetryBaseSeconds = 1
)

// DefaultMethodPriority is the fallback order when none is configured:
// non-interactive service accounts first, then OAuth, then the read-only
// developer key as the last resort.
var DefaultMethodPriority = []string{method.IDServiceAccount, method.IDOAuth, method.IDAPIKey}

// DefaultOAuthScopes is the scope set requested at OAuth consent: everything
// channel management needs, so one consent covers all write paths.
var DefaultOAuthScopes = []string{
	authn.ScopeYouTube,
	authn.ScopeYouTubeUpload,
	authn.ScopeYouTubeForceSSL,
	authn.ScopeYouTubePartner,
	authn.ScopeYouTubeReadonly,
	authn.ScopeAnalyticsReadonly,
	authn.ScopeAnalyticsMonetaryRead,
}

// DefaultAPIKeyScopes is what a developer key stands in for: read-only data
// access.
var DefaultAPIKeyScopes = []string{
	authn.ScopeYouTubeReadonly,
	authn.ScopeAnalyticsReadonly,
	authn.ScopeAnalyticsMonetaryRead,
}

// StorageConfig selects and parameterizes the credential store backend.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file keyring"`

	// Dir is the credentials directory for file storage.
	Dir string `json:"dir,omitempty"`

	// KeyringService is the service identifier for keyring storage.
	KeyringService string `json:"keyring_service,omitempty"`
}

// NewStore creates a credential store from the storage configuration.
func (s *StorageConfig) NewStore() (credstore.Store, error) {
	switch s.Type {
	case StorageTypeFile:
		return credstore.NewFileStore(s.Dir)
	case StorageTypeKeyring:
		return credstore.NewKeyringStore(s.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// OAuthConfig holds the OAuth client configuration.
type OAuthConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// RedirectStrategy is loopback or out_of_band.
	RedirectStrategy string `json:"redirect_strategy" validate:"omitempty,oneof=loopback out_of_band"`

	// Scopes requested at consent. Defaults to DefaultOAuthScopes.
	Scopes []string `json:"scopes,omitempty"`
}

// APIKeyConfig holds the static developer key configuration.
type APIKeyConfig struct {
	Key     string `json:"key,omitempty"`
	KeyFile string `json:"key_file,omitempty"`
}

// ServiceAccountConfig holds the service account configuration.
type ServiceAccountConfig struct {
	KeyFile string `json:"key_file,omitempty"`
	Subject string `json:"subject,omitempty"`

	// Scopes for minted tokens. Defaults to DefaultOAuthScopes.
	Scopes []string `json:"scopes,omitempty"`
}

// TimeoutConfig bounds interactive and network operations.
type TimeoutConfig struct {
	// ConsentSeconds bounds how long an interactive consent flow waits.
	ConsentSeconds int `json:"consent_seconds" validate:"min=0"`

	// AttemptSeconds bounds the wall time of one token-endpoint operation.
	AttemptSeconds int `json:"attempt_seconds" validate:"min=0"`
}

// RetryConfig bounds token-endpoint retries.
type RetryConfig struct {
	MaxAttempts      int `json:"max_attempts" validate:"min=0"`
	BaseDelaySeconds int `json:"base_delay_seconds" validate:"min=0"`
}

// AuthConfig is the configuration surface of the credential manager.
type AuthConfig struct {
	// MethodPriority orders the fallback chain. Methods absent from the list
	// are not offered at all.
	MethodPriority []string `json:"method_priority,omitempty"`

	// Account identifies the channel account, for diagnostics.
	Account string `json:"account,omitempty"`

	OAuth          OAuthConfig          `json:"oauth"`
	APIKey         APIKeyConfig         `json:"api_key"`
	ServiceAccount ServiceAccountConfig `json:"service_account"`

	// Scopes overrides the capability-to-scope mapping.
	Scopes map[string][]string `json:"scopes,omitempty"`

	Timeouts TimeoutConfig `json:"timeouts"`
	Retry    RetryConfig   `json:"retry"`
}

// ConsentTimeout returns the consent wait as a duration.
func (c *AuthConfig) ConsentTimeout() time.Duration {
	return time.Duration(c.Timeouts.ConsentSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt deadline as a duration.
func (c *AuthConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.Timeouts.AttemptSeconds) * time.Second
}

// RetryPolicy converts the retry configuration for the providers.
func (c *AuthConfig) RetryPolicy() method.RetryPolicy {
	return method.RetryPolicy{
		MaxAttempts: uint(c.Retry.MaxAttempts),
		BaseDelay:   time.Duration(c.Retry.BaseDelaySeconds) * time.Second,
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level    `json:"log_level"`
	LogFormat LogFormat     `json:"log_format" validate:"oneof=text json"`
	Storage   StorageConfig `json:"storage"`
	Auth      AuthConfig    `json:"auth"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorage
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
			}
			c.Storage.Dir = filepath.Join(configDir, "youtube-autopilot", "credentials")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			c.Storage.KeyringService = DefaultConfigKeyringService
		}
	}

	if len(c.Auth.MethodPriority) == 0 {
		c.Auth.MethodPriority = slices.Clone(DefaultMethodPriority)
	}
	if c.Auth.OAuth.RedirectStrategy == "" {
		c.Auth.OAuth.RedirectStrategy = string(method.RedirectLoopback)
	}
	if len(c.Auth.OAuth.Scopes) == 0 {
		c.Auth.OAuth.Scopes = slices.Clone(DefaultOAuthScopes)
	}
	if len(c.Auth.ServiceAccount.Scopes) == 0 {
		c.Auth.ServiceAccount.Scopes = slices.Clone(DefaultOAuthScopes)
	}
	if c.Auth.Timeouts.ConsentSeconds == 0 {
		c.Auth.Timeouts.ConsentSeconds = DefaultConfigConsentSeconds
	}
	if c.Auth.Timeouts.AttemptSeconds == 0 {
		c.Auth.Timeouts.AttemptSeconds = DefaultConfigAttemptSeconds
	}
	if c.Auth.Retry.MaxAttempts == 0 {
		c.Auth.Retry.MaxAttempts = DefaultConfigRetryAttempts
	}
	if c.Auth.Retry.BaseDelaySeconds == 0 {
		c.Auth.Retry.BaseDelaySeconds = DefaultConfigRetryBaseSeconds
	}

	return nil
}

// Validate validates the configuration using struct tags and cross-field
// rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir required for file storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			return errors.New("storage.keyring_service required for keyring storage")
		}
	}

	known := map[string]bool{
		method.IDOAuth:          true,
		method.IDAPIKey:         true,
		method.IDServiceAccount: true,
	}
	seen := map[string]bool{}
	for _, id := range c.Auth.MethodPriority {
		if !known[id] {
			return fmt.Errorf("method_priority names unknown method %q", id)
		}
		if seen[id] {
			return fmt.Errorf("method_priority lists %q twice", id)
		}
		seen[id] = true
	}

	if c.Auth.APIKey.Key != "" && c.Auth.APIKey.KeyFile != "" {
		return errors.New("api_key.key and api_key.key_file are mutually exclusive")
	}

	return nil
}
