package app

import (
	"slices"
	"testing"
	"time"

	"github.com/scubapro711/youtube-autopilot/internal/authn"
	"github.com/scubapro711/youtube-autopilot/internal/method"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.Storage.Type != StorageTypeFile {
		t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, StorageTypeFile)
	}
	if cfg.Storage.Dir == "" {
		t.Error("Storage.Dir not defaulted")
	}
	if !slices.Equal(cfg.Auth.MethodPriority, DefaultMethodPriority) {
		t.Errorf("MethodPriority = %v, want %v", cfg.Auth.MethodPriority, DefaultMethodPriority)
	}
	if cfg.Auth.OAuth.RedirectStrategy != string(method.RedirectLoopback) {
		t.Errorf("RedirectStrategy = %q, want loopback", cfg.Auth.OAuth.RedirectStrategy)
	}
	if !slices.Contains(cfg.Auth.OAuth.Scopes, authn.ScopeYouTubeUpload) {
		t.Error("default OAuth scopes missing upload scope")
	}
	if got := cfg.Auth.ConsentTimeout(); got != 300*time.Second {
		t.Errorf("ConsentTimeout() = %v, want 300s", got)
	}
	if got := cfg.Auth.AttemptTimeout(); got != 30*time.Second {
		t.Errorf("AttemptTimeout() = %v, want 30s", got)
	}
	if rp := cfg.Auth.RetryPolicy(); rp.MaxAttempts != 3 || rp.BaseDelay != time.Second {
		t.Errorf("RetryPolicy() = %+v, want 3 attempts at 1s base", rp)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestApplyDefaultsKeyring(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: StorageTypeKeyring}}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}
	if cfg.Storage.KeyringService != DefaultConfigKeyringService {
		t.Errorf("KeyringService = %q, want %q", cfg.Storage.KeyringService, DefaultConfigKeyringService)
	}
	if cfg.Storage.Dir != "" {
		t.Errorf("Dir = %q, want empty for keyring storage", cfg.Storage.Dir)
	}
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Default()
		if err != nil {
			t.Fatalf("Default() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "default config",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown method in priority",
			mutate:  func(c *Config) { c.Auth.MethodPriority = []string{"oauth", "msa"} },
			wantErr: true,
		},
		{
			name:    "duplicate method in priority",
			mutate:  func(c *Config) { c.Auth.MethodPriority = []string{"oauth", "oauth"} },
			wantErr: true,
		},
		{
			name: "api key literal and file together",
			mutate: func(c *Config) {
				c.Auth.APIKey.Key = "AIza-test"
				c.Auth.APIKey.KeyFile = "/tmp/key"
			},
			wantErr: true,
		},
		{
			name:    "bad redirect strategy",
			mutate:  func(c *Config) { c.Auth.OAuth.RedirectStrategy = "popup" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "yaml" },
			wantErr: true,
		},
		{
			name: "keyring without service",
			mutate: func(c *Config) {
				c.Storage.Type = StorageTypeKeyring
				c.Storage.KeyringService = ""
			},
			wantErr: true,
		},
		{
			name: "file storage without dir",
			mutate: func(c *Config) {
				c.Storage.Dir = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
