package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/scubapro711/youtube-autopilot/internal/authn"
	"github.com/scubapro711/youtube-autopilot/internal/credstore"
	"github.com/scubapro711/youtube-autopilot/internal/method"
)

// Option configures optional App behavior.
type Option func(*options)

type options struct {
	interactive bool
}

// WithInteractive permits interactive consent flows. Leave off for
// unattended callers so a missing credential fails fast with a
// consent-required classification instead of hanging on a prompt.
func WithInteractive(interactive bool) Option {
	return func(o *options) { o.interactive = interactive }
}

// App wires the credential store, the configured authentication methods, and
// the authenticator from application configuration.
type App struct {
	cfg  *Config
	auth *authn.Authenticator
}

// New creates a new App instance. No I/O is performed beyond creating the
// credentials directory; credential reads are deferred to the first
// authorization.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := cfg.Storage.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	policy, err := authn.NewPolicy(cfg.Auth.Scopes)
	if err != nil {
		return nil, fmt.Errorf("invalid scope mapping: %w", err)
	}

	providers, err := newProviders(&cfg.Auth, o.interactive)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication methods: %w", err)
	}

	auth, err := authn.New(store, policy, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	return &App{cfg: cfg, auth: auth}, nil
}

// newProviders builds one provider per method in the configured priority
// order; the list position becomes the priority rank.
func newProviders(cfg *AuthConfig, interactive bool) ([]method.Provider, error) {
	providers := make([]method.Provider, 0, len(cfg.MethodPriority))
	for rank, id := range cfg.MethodPriority {
		switch id {
		case method.IDOAuth:
			p, err := method.NewOAuth(method.OAuthConfig{
				ClientID:         cfg.OAuth.ClientID,
				ClientSecret:     cfg.OAuth.ClientSecret,
				Scopes:           cfg.OAuth.Scopes,
				RedirectStrategy: method.RedirectStrategy(cfg.OAuth.RedirectStrategy),
				Interactive:      interactive,
				ConsentTimeout:   cfg.ConsentTimeout(),
				AttemptTimeout:   cfg.AttemptTimeout(),
				Retry:            cfg.RetryPolicy(),
				Priority:         rank,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case method.IDAPIKey:
			providers = append(providers, method.NewAPIKey(method.APIKeyConfig{
				Key:      cfg.APIKey.Key,
				KeyFile:  cfg.APIKey.KeyFile,
				Scopes:   DefaultAPIKeyScopes,
				Priority: rank,
			}))
		case method.IDServiceAccount:
			providers = append(providers, method.NewServiceAccount(method.ServiceAccountConfig{
				KeyFile:        cfg.ServiceAccount.KeyFile,
				Subject:        cfg.ServiceAccount.Subject,
				Scopes:         cfg.ServiceAccount.Scopes,
				Priority:       rank,
				AttemptTimeout: cfg.AttemptTimeout(),
				Retry:          cfg.RetryPolicy(),
			}))
		default:
			return nil, fmt.Errorf("unknown method %q in priority list", id)
		}
	}
	return providers, nil
}

// Authorize returns a transport authorized for the requested capabilities.
func (a *App) Authorize(ctx context.Context, capabilities ...string) (*authn.Grant, error) {
	return a.auth.Authorize(ctx, authn.Request{
		Capabilities: capabilities,
		Account:      a.cfg.Auth.Account,
	})
}

// Client returns an http.Client whose transport is authorized for the
// requested capabilities. Convenience for API callers.
func (a *App) Client(ctx context.Context, capabilities ...string) (*http.Client, error) {
	grant, err := a.Authorize(ctx, capabilities...)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "issued authorized client", "method", grant.Method.ID)
	return &http.Client{Transport: grant.Transport}, nil
}

// Login acquires and persists a credential for one method.
func (a *App) Login(ctx context.Context, methodID string) (*credstore.Credential, error) {
	return a.auth.Login(ctx, methodID)
}

// Status reports each configured method's credential state.
func (a *App) Status(ctx context.Context) []authn.MethodStatus {
	return a.auth.Status(ctx)
}

// Revoke clears one method's stored credential.
func (a *App) Revoke(ctx context.Context, methodID string) error {
	return a.auth.Revoke(ctx, methodID)
}
