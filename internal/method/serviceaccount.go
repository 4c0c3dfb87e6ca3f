package method

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
)

// ServiceAccountConfig configures the service-account (JWT bearer) provider.
type ServiceAccountConfig struct {
	// KeyFile is the path to the provider-issued JSON key file.
	KeyFile string

	// Subject optionally impersonates a user within the account's domain.
	Subject string

	// Scopes the minted bearer tokens are requested for.
	Scopes []string

	Priority int

	AttemptTimeout time.Duration
	Retry          RetryPolicy
}

// ServiceAccountProvider exchanges a signed JWT assertion for a short-lived
// bearer token with no interactive step. There is no refresh token; renewal
// re-mints a fresh assertion.
type ServiceAccountProvider struct {
	cfg ServiceAccountConfig

	mu     sync.Mutex
	email  string
	source oauth2.TokenSource
}

// Compile-time check to ensure ServiceAccountProvider implements Provider
var _ Provider = (*ServiceAccountProvider)(nil)

// NewServiceAccount creates the provider. The key file is read lazily on
// first use so construction never performs I/O.
func NewServiceAccount(cfg ServiceAccountConfig) *ServiceAccountProvider {
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	return &ServiceAccountProvider{cfg: cfg}
}

func (p *ServiceAccountProvider) Descriptor() Descriptor {
	return Descriptor{
		ID:         IDServiceAccount,
		Priority:   p.cfg.Priority,
		Capability: CapabilityFullManagement,
	}
}

func (p *ServiceAccountProvider) Available() bool {
	return p.cfg.KeyFile != ""
}

// tokenSource parses the key file once and returns a caching token source
// that mints assertions on demand.
func (p *ServiceAccountProvider) tokenSource(ctx context.Context) (oauth2.TokenSource, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source != nil {
		return p.source, p.email, nil
	}

	if p.cfg.KeyFile == "" {
		return nil, "", Errorf(KindConfiguration, IDServiceAccount, "no service account key file configured")
	}
	if len(p.cfg.Scopes) == 0 {
		return nil, "", Errorf(KindConfiguration, IDServiceAccount, "service account provider requires at least one scope")
	}

	data, err := os.ReadFile(p.cfg.KeyFile)
	if err != nil {
		return nil, "", Errorf(KindConfiguration, IDServiceAccount, "reading key file: %v", err)
	}
	conf, err := google.JWTConfigFromJSON(data, p.cfg.Scopes...)
	if err != nil {
		return nil, "", Errorf(KindConfiguration, IDServiceAccount, "parsing key file %s: %v", p.cfg.KeyFile, err)
	}
	conf.Subject = p.cfg.Subject

	p.email = conf.Email
	// Detach from the caller's context: the cached source outlives this call.
	p.source = conf.TokenSource(context.WithoutCancel(ctx))
	return p.source, p.email, nil
}

// Acquire mints a bearer token to prove the key works, then returns the
// persistable record. Only the key reference and identity are persisted,
// never the short-lived token or the private key material.
func (p *ServiceAccountProvider) Acquire(ctx context.Context) (*credstore.Credential, error) {
	src, email, err := p.tokenSource(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := p.mint(ctx, src); err != nil {
		return nil, err
	}

	return &credstore.Credential{
		Kind:      credstore.KindServiceAccount,
		Scopes:    p.cfg.Scopes,
		UpdatedAt: time.Now().UTC(),
		ServiceAccount: &credstore.ServiceAccountKey{
			ClientEmail: email,
			KeyFile:     p.cfg.KeyFile,
		},
	}, nil
}

// Refresh re-mints the assertion. The stored record does not change beyond
// its freshness timestamp, since the bearer token is never persisted.
func (p *ServiceAccountProvider) Refresh(ctx context.Context, cred *credstore.Credential) (*credstore.Credential, error) {
	src, _, err := p.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := p.mint(ctx, src); err != nil {
		return nil, err
	}

	next := *cred
	next.UpdatedAt = time.Now().UTC()
	return &next, nil
}

// Transport returns a RoundTripper backed by the minting token source, so an
// expired bearer is replaced transparently mid-use.
func (p *ServiceAccountProvider) Transport(base http.RoundTripper, cred *credstore.Credential) (http.RoundTripper, error) {
	if cred.ServiceAccount == nil {
		return nil, Errorf(KindConfiguration, IDServiceAccount, "credential carries no service account reference")
	}
	src, _, err := p.tokenSource(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Transport{Base: base, Source: src}, nil
}

// mint obtains a bearer token from the caching source, generating and
// exchanging a fresh assertion when the cached one has expired.
func (p *ServiceAccountProvider) mint(ctx context.Context, src oauth2.TokenSource) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	return retryToken(ctx, IDServiceAccount, p.cfg.Retry, src.Token)
}
