package method

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
)

// APIKeyConfig configures the static API-key provider.
type APIKeyConfig struct {
	// Key is the developer key itself. Takes precedence over KeyFile.
	Key string

	// KeyFile is a path to a file holding the key.
	KeyFile string

	// Scopes is the read-only scope set the key stands in for.
	Scopes []string

	Priority int
}

// APIKeyProvider attaches a static developer key to outgoing requests. The
// key never expires, never refreshes, and is fixed at read-only capability:
// the authenticator must never select it for a write-level request.
type APIKeyProvider struct {
	cfg APIKeyConfig
	key string
}

// Compile-time check to ensure APIKeyProvider implements Provider
var _ Provider = (*APIKeyProvider)(nil)

// NewAPIKey creates the API-key provider. Reading a configured key file is
// deferred until Acquire so construction never performs I/O.
func NewAPIKey(cfg APIKeyConfig) *APIKeyProvider {
	return &APIKeyProvider{cfg: cfg, key: strings.TrimSpace(cfg.Key)}
}

func (p *APIKeyProvider) Descriptor() Descriptor {
	return Descriptor{
		ID:         IDAPIKey,
		Priority:   p.cfg.Priority,
		Capability: CapabilityReadOnly,
	}
}

func (p *APIKeyProvider) Available() bool {
	return p.key != "" || p.cfg.KeyFile != ""
}

// Acquire validates the configured key and wraps it in a credential record.
func (p *APIKeyProvider) Acquire(ctx context.Context) (*credstore.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(IDAPIKey, err)
	}

	key, err := p.loadKey()
	if err != nil {
		return nil, err
	}

	return &credstore.Credential{
		Kind:      credstore.KindAPIKey,
		Scopes:    p.cfg.Scopes,
		UpdatedAt: time.Now().UTC(),
		APIKey:    &credstore.APIKey{Key: key},
	}, nil
}

// Refresh is a no-op: API keys never expire.
func (p *APIKeyProvider) Refresh(ctx context.Context, cred *credstore.Credential) (*credstore.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(IDAPIKey, err)
	}
	return cred, nil
}

// Transport returns a RoundTripper that attaches the key as the `key` query
// parameter on every request.
func (p *APIKeyProvider) Transport(base http.RoundTripper, cred *credstore.Credential) (http.RoundTripper, error) {
	if cred.APIKey == nil || cred.APIKey.Key == "" {
		return nil, Errorf(KindConfiguration, IDAPIKey, "credential carries no key")
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &apiKeyTransport{base: base, key: cred.APIKey.Key}, nil
}

func (p *APIKeyProvider) loadKey() (string, error) {
	if p.key != "" {
		return p.key, nil
	}
	if p.cfg.KeyFile == "" {
		return "", Errorf(KindConfiguration, IDAPIKey, "no api key configured")
	}
	data, err := readKeyFile(p.cfg.KeyFile)
	if err != nil {
		return "", Errorf(KindConfiguration, IDAPIKey, "reading api key file: %v", err)
	}
	key := strings.TrimSpace(data)
	if key == "" {
		return "", Errorf(KindConfiguration, IDAPIKey, "api key file %s is empty", p.cfg.KeyFile)
	}
	return key, nil
}

func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// apiKeyTransport adds the developer key to each request's query string. The
// request is cloned; the caller's request is never mutated.
type apiKeyTransport struct {
	base http.RoundTripper
	key  string
}

// Compile-time check that apiKeyTransport implements http.RoundTripper.
var _ http.RoundTripper = (*apiKeyTransport)(nil)

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	q := clone.URL.Query()
	q.Set("key", t.key)
	clone.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(clone)
}
