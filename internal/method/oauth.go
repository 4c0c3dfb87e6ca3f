package method

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httplog/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
)

// RedirectStrategy selects how the authorization code travels back from the
// consent screen.
type RedirectStrategy string

const (
	// RedirectLoopback runs a short-lived local listener and validates the
	// state parameter round-trip.
	RedirectLoopback RedirectStrategy = "loopback"

	// RedirectOutOfBand relays the code through a manually pasted string.
	// There is no redirect callback and therefore no state-forgery surface.
	RedirectOutOfBand RedirectStrategy = "out_of_band"
)

// oobRedirectURL asks the authorization server to display the code to the
// user instead of redirecting.
const oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

// DefaultConsentTimeout bounds how long an interactive consent flow waits for
// the user before the attempt is abandoned.
const DefaultConsentTimeout = 300 * time.Second

// stateBytes is the number of random bytes in the state parameter. 32 bytes
// encode to 43 base64url characters.
const stateBytes = 32

// OAuthConfig configures the OAuth authorization-code provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string

	// Scopes requested at consent. Must be non-empty.
	Scopes []string

	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint

	RedirectStrategy RedirectStrategy

	// ListenAddr is the loopback listener address, default "127.0.0.1:0".
	ListenAddr string

	// Interactive permits Acquire to run a consent flow. When false, Acquire
	// fails immediately with a consent-required classification so unattended
	// callers never hang on a prompt.
	Interactive bool

	ConsentTimeout time.Duration
	AttemptTimeout time.Duration
	Retry          RetryPolicy

	Priority int

	// CodeInput is where the out-of-band flow reads the pasted code from.
	// Defaults to os.Stdin.
	CodeInput io.Reader

	// Prompt is where consent instructions are written. Defaults to os.Stderr.
	Prompt io.Writer

	Logger *slog.Logger
}

// OAuthProvider implements the OAuth2 authorization-code method, including
// the refresh-token renewal path.
type OAuthProvider struct {
	cfg OAuthConfig

	// readerOnce/codes back the single goroutine reading pasted out-of-band
	// codes. A blocked read on CodeInput cannot be interrupted, so the reader
	// is shared across attempts: a timed-out attempt leaves it parked on the
	// next line instead of stranding one goroutine per try, and a code pasted
	// after a timeout feeds the next attempt.
	readerOnce sync.Once
	codes      chan callbackResult
}

// Compile-time check to ensure OAuthProvider implements Provider
var _ Provider = (*OAuthProvider)(nil)

// NewOAuth creates the OAuth provider, applying defaults for everything but
// client identity and scopes.
func NewOAuth(cfg OAuthConfig) (*OAuthProvider, error) {
	if len(cfg.Scopes) == 0 && cfg.ClientID != "" {
		return nil, fmt.Errorf("oauth provider requires at least one scope")
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	switch cfg.RedirectStrategy {
	case "":
		cfg.RedirectStrategy = RedirectLoopback
	case RedirectLoopback, RedirectOutOfBand:
	default:
		return nil, fmt.Errorf("unknown redirect strategy %q", cfg.RedirectStrategy)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.ConsentTimeout == 0 {
		cfg.ConsentTimeout = DefaultConsentTimeout
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.CodeInput == nil {
		cfg.CodeInput = os.Stdin
	}
	if cfg.Prompt == nil {
		cfg.Prompt = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OAuthProvider{cfg: cfg}, nil
}

func (p *OAuthProvider) Descriptor() Descriptor {
	return Descriptor{
		ID:         IDOAuth,
		Priority:   p.cfg.Priority,
		Capability: CapabilityFullManagement,
	}
}

func (p *OAuthProvider) Available() bool {
	return p.cfg.ClientID != ""
}

func (p *OAuthProvider) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Scopes:       p.cfg.Scopes,
		Endpoint:     p.cfg.Endpoint,
		RedirectURL:  redirectURL,
	}
}

// Acquire runs the configured consent flow and exchanges the resulting
// authorization code for tokens.
func (p *OAuthProvider) Acquire(ctx context.Context) (*credstore.Credential, error) {
	if !p.Available() {
		return nil, Errorf(KindConfiguration, IDOAuth, "oauth client id not configured")
	}
	if !p.cfg.Interactive {
		return nil, Errorf(KindConsentRequired, IDOAuth, "interactive consent required, run the login command")
	}

	switch p.cfg.RedirectStrategy {
	case RedirectOutOfBand:
		return p.acquireOutOfBand(ctx)
	default:
		return p.acquireLoopback(ctx)
	}
}

// callbackResult carries the outcome of a single consent round-trip.
type callbackResult struct {
	code string
	err  error
}

// acquireLoopback runs the consent flow with a one-shot local redirect
// listener. The state parameter issued for this request must round-trip
// exactly; any mismatch fails closed before the code is exchanged.
func (p *OAuthProvider) acquireLoopback(ctx context.Context) (*credstore.Credential, error) {
	state, err := newState()
	if err != nil {
		return nil, E(KindConfiguration, IDOAuth, err)
	}

	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return nil, Errorf(KindConfiguration, IDOAuth, "starting loopback listener on %s: %v", p.cfg.ListenAddr, err)
	}
	defer func() { _ = ln.Close() }()

	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	conf := p.oauth2Config(redirectURL)
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))

	resultCh := make(chan callbackResult, 1)
	var deliver sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		res := p.handleCallback(r, state)
		if res.err != nil {
			http.Error(w, "Authorization failed. You may close this window.", http.StatusForbidden)
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprintln(w, "Authorization complete. You may close this window.")
		}
		deliver.Do(func() { resultCh <- res })
	})

	srv := &http.Server{Handler: requestLogging(p.cfg.Logger)(mux)}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	fmt.Fprintf(p.cfg.Prompt, "Visit this URL to authorize access:\n\n  %s\n\n", authURL)
	p.cfg.Logger.Info("waiting for oauth consent", "strategy", RedirectLoopback, "timeout", p.cfg.ConsentTimeout)

	timer := time.NewTimer(p.cfg.ConsentTimeout)
	defer timer.Stop()

	var code string
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, Classify(IDOAuth, res.err)
		}
		code = res.code
	case <-timer.C:
		return nil, Errorf(KindTimeout, IDOAuth, "consent not completed within %s", p.cfg.ConsentTimeout)
	case <-ctx.Done():
		return nil, Classify(IDOAuth, ctx.Err())
	}

	return p.exchange(ctx, conf, code)
}

// handleCallback validates a redirect callback against the issued state.
func (p *OAuthProvider) handleCallback(r *http.Request, issuedState string) callbackResult {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		// Map the authorization endpoint's error response through the same
		// classifier as token endpoint failures.
		re := &oauth2.RetrieveError{ErrorCode: errCode, ErrorDescription: q.Get("error_description")}
		return callbackResult{err: E(classifyRetrieve(re), IDOAuth, re)}
	}

	got := q.Get("state")
	if subtle.ConstantTimeCompare([]byte(got), []byte(issuedState)) != 1 {
		return callbackResult{err: Errorf(KindConfiguration, IDOAuth, "state parameter mismatch, rejecting authorization response")}
	}

	code := q.Get("code")
	if code == "" {
		return callbackResult{err: Errorf(KindConfiguration, IDOAuth, "callback carried no authorization code")}
	}
	return callbackResult{code: code}
}

// acquireOutOfBand runs the manual code-relay flow: the user opens the URL,
// approves, and pastes the displayed code back.
func (p *OAuthProvider) acquireOutOfBand(ctx context.Context) (*credstore.Credential, error) {
	conf := p.oauth2Config(oobRedirectURL)
	authURL := conf.AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))

	fmt.Fprintf(p.cfg.Prompt, "Visit this URL to authorize access:\n\n  %s\n\nEnter the authorization code: ", authURL)
	p.cfg.Logger.Info("waiting for oauth consent", "strategy", RedirectOutOfBand, "timeout", p.cfg.ConsentTimeout)

	codeCh := p.codeReader()

	timer := time.NewTimer(p.cfg.ConsentTimeout)
	defer timer.Stop()

	var code string
	select {
	case res := <-codeCh:
		if res.err != nil {
			return nil, Classify(IDOAuth, res.err)
		}
		if res.code == "" {
			return nil, Errorf(KindConsentRequired, IDOAuth, "empty authorization code")
		}
		code = res.code
	case <-timer.C:
		return nil, Errorf(KindTimeout, IDOAuth, "authorization code not entered within %s", p.cfg.ConsentTimeout)
	case <-ctx.Done():
		return nil, Classify(IDOAuth, ctx.Err())
	}

	return p.exchange(ctx, conf, code)
}

// codeReader starts (once) the goroutine reading pasted codes off CodeInput,
// one line per attempt. After CodeInput is exhausted a single error is
// delivered and subsequent attempts run into the consent timeout.
func (p *OAuthProvider) codeReader() <-chan callbackResult {
	p.readerOnce.Do(func() {
		p.codes = make(chan callbackResult)
		go func() {
			scanner := bufio.NewScanner(p.cfg.CodeInput)
			for scanner.Scan() {
				p.codes <- callbackResult{code: strings.TrimSpace(scanner.Text())}
			}
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			p.codes <- callbackResult{err: Errorf(KindConsentRequired, IDOAuth, "reading authorization code: %v", err)}
		}()
	})
	return p.codes
}

// exchange swaps an authorization code for tokens, retrying transient
// failures and verifying the granted scopes cover the requested set. The
// one-time code is never persisted.
func (p *OAuthProvider) exchange(ctx context.Context, conf *oauth2.Config, code string) (*credstore.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	tok, err := retryToken(ctx, IDOAuth, p.cfg.Retry, func() (*oauth2.Token, error) {
		return conf.Exchange(ctx, code)
	})
	if err != nil {
		return nil, err
	}

	granted := grantedScopes(tok, p.cfg.Scopes)
	if missing := missingScopes(granted, p.cfg.Scopes); len(missing) > 0 {
		return nil, Errorf(KindConfiguration, IDOAuth, "consent granted fewer scopes than requested, missing %v", missing)
	}

	return &credstore.Credential{
		Kind:      credstore.KindOAuthToken,
		Scopes:    granted,
		UpdatedAt: time.Now().UTC(),
		OAuth: &credstore.OAuthToken{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Expiry:       tok.Expiry,
		},
	}, nil
}

// Refresh exchanges the stored refresh token for a new access token. An
// invalid_grant response classifies as consent-required: the caller must run
// a fresh consent cycle rather than retry the refresh.
func (p *OAuthProvider) Refresh(ctx context.Context, cred *credstore.Credential) (*credstore.Credential, error) {
	if cred.OAuth == nil || cred.OAuth.RefreshToken == "" {
		return nil, Errorf(KindConsentRequired, IDOAuth, "no refresh token stored")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	conf := p.oauth2Config("")
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.OAuth.RefreshToken})

	tok, err := retryToken(ctx, IDOAuth, p.cfg.Retry, src.Token)
	if err != nil {
		return nil, err
	}

	next := *cred
	oauthTok := *cred.OAuth
	oauthTok.AccessToken = tok.AccessToken
	oauthTok.Expiry = tok.Expiry
	if tok.TokenType != "" {
		oauthTok.TokenType = tok.TokenType
	}
	// The refresh token changes only if the provider rotates it. The rotated
	// token is persisted together with the access token in one write.
	if tok.RefreshToken != "" {
		oauthTok.RefreshToken = tok.RefreshToken
	}
	next.OAuth = &oauthTok
	next.UpdatedAt = time.Now().UTC()
	return &next, nil
}

// Transport returns a RoundTripper that sends the credential's bearer token.
func (p *OAuthProvider) Transport(base http.RoundTripper, cred *credstore.Credential) (http.RoundTripper, error) {
	if cred.OAuth == nil || cred.OAuth.AccessToken == "" {
		return nil, Errorf(KindConfiguration, IDOAuth, "credential carries no access token")
	}
	return &oauth2.Transport{
		Base: base,
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cred.OAuth.AccessToken,
			TokenType:   cred.OAuth.TokenType,
			Expiry:      cred.OAuth.Expiry,
		}),
	}, nil
}

// requestLogging logs loopback callback requests without capturing query
// strings or bodies, which would leak authorization codes.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema:             httplog.SchemaECS.Concise(true),
		LogRequestHeaders:  []string{},
		LogResponseHeaders: []string{},
	})
}

// newState generates an unpredictable state parameter.
func newState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state parameter: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// grantedScopes extracts the scope set actually granted at consent, falling
// back to the requested set when the token response omits it.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		return strings.Fields(s)
	}
	return requested
}

// missingScopes returns requested scopes absent from the granted set.
func missingScopes(granted, requested []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range requested {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
