package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
	"github.com/scubapro711/youtube-autopilot/internal/method"
)

// DefaultExpiryMargin is the safety margin before token expiry at which a
// credential is refreshed instead of used as-is. Accounts for clock skew and
// the latency of the call the credential is about to authorize.
const DefaultExpiryMargin = 60 * time.Second

// Request asks for an authorized transport covering a set of operation kinds.
// Immutable once issued.
type Request struct {
	// ID correlates log lines for one authorization attempt. Assigned
	// automatically when empty.
	ID string

	// Capabilities are the operation kinds the caller intends to perform.
	Capabilities []string

	// Account identifies the channel account, for diagnostics only.
	Account string
}

// Grant is a successful authorization: a transport bound to one credential
// plus the descriptor of the method that produced it.
type Grant struct {
	Method     method.Descriptor
	Credential *credstore.Credential
	Transport  http.RoundTripper
}

// Failure records why one method could not satisfy a request.
type Failure struct {
	MethodID string
	Kind     method.ErrorKind
	Err      error
}

// AuthorizeError aggregates per-method failures in the order the methods were
// tried. Error() surfaces the most actionable failure; Failures keeps the
// full diagnostic list.
type AuthorizeError struct {
	Failures []Failure
}

func (e *AuthorizeError) Error() string {
	if len(e.Failures) == 0 {
		return "authorization failed: no viable authentication method"
	}
	top := e.mostActionable()
	return fmt.Sprintf("authorization failed (%s): %v", top.Kind, top.Err)
}

// Kind returns the most actionable failure's classification.
func (e *AuthorizeError) Kind() method.ErrorKind {
	if len(e.Failures) == 0 {
		return method.KindConfiguration
	}
	return e.mostActionable().Kind
}

// Unwrap exposes every per-method failure to errors.Is/errors.As.
func (e *AuthorizeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// actionability orders failure kinds by how directly an operator can act on
// them. Lower is more actionable.
func actionability(k method.ErrorKind) int {
	switch k {
	case method.KindConsentRequired:
		return 0
	case method.KindConfiguration:
		return 1
	case method.KindBlockedPolicy:
		return 2
	case method.KindBlockedAllowlist:
		return 3
	case method.KindScopeInsufficient:
		return 4
	case method.KindQuotaExceeded:
		return 5
	case method.KindTimeout:
		return 6
	default:
		return 7
	}
}

func (e *AuthorizeError) mostActionable() Failure {
	best := e.Failures[0]
	for _, f := range e.Failures[1:] {
		if actionability(f.Kind) < actionability(best.Kind) {
			best = f
		}
	}
	return best
}

// State is the per-method summary reported by Status.
type State string

const (
	StateNotConfigured      State = "not-configured"
	StateAuthenticated      State = "authenticated"
	StateExpiredRefreshable State = "expired-refreshable"
	StateConsentRequired    State = "consent-required"
	StateBlocked            State = "blocked"

	// StateError means the stored credential could not be read at all, e.g.
	// an unreadable credentials directory or a file with insecure
	// permissions. Distinct from consent-required so storage trouble is not
	// misreported as a healthy-but-unconsented method.
	StateError State = "error"
)

// MethodStatus is one method's line in the status report.
type MethodStatus struct {
	Method method.Descriptor
	State  State
	Reason string
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithExpiryMargin overrides the refresh safety margin.
func WithExpiryMargin(margin time.Duration) Option {
	return func(a *Authenticator) { a.margin = margin }
}

// WithBaseTransport sets the transport wrapped by authorized transports.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(a *Authenticator) { a.base = base }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// Authenticator selects among the configured authentication methods and
// hands out authorized transports. Safe for concurrent use; a single
// authorization attempt runs methods strictly sequentially so interactive
// prompts and rate limits are never hit speculatively.
type Authenticator struct {
	store     credstore.Store
	policy    *ScopePolicy
	providers []method.Provider

	margin time.Duration
	base   http.RoundTripper
	logger *slog.Logger

	// ensureGroup deduplicates concurrent ensure calls per method so a burst
	// of requests triggers at most one refresh network call.
	ensureGroup singleflight.Group

	mu      sync.Mutex
	blocked map[string]*method.Error
}

// New creates an Authenticator over the given providers. Provider order is
// normalized by priority rank; ties prefer the higher capability level.
func New(store credstore.Store, policy *ScopePolicy, providers []method.Provider, opts ...Option) (*Authenticator, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no authentication methods configured")
	}

	sorted := make([]method.Provider, len(providers))
	copy(sorted, providers)
	method.SortProviders(sorted)

	a := &Authenticator{
		store:     store,
		policy:    policy,
		providers: sorted,
		margin:    DefaultExpiryMargin,
		logger:    slog.Default(),
		blocked:   make(map[string]*method.Error),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authorize resolves the request's scopes, walks viable methods in priority
// order, and returns a transport bound to the first method that
// authenticates. On exhaustion it returns an AuthorizeError carrying every
// per-method reason in try order.
func (a *Authenticator) Authorize(ctx context.Context, req Request) (*Grant, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := a.logger.With("request_id", req.ID)

	scopes, level, err := a.policy.Resolve(req.Capabilities)
	if err != nil {
		return nil, method.E(method.KindConfiguration, "request", err)
	}
	logger.Debug("authorizing request",
		"capabilities", req.Capabilities, "level", level.String(), "scopes", len(scopes))

	var failures []Failure
	for _, p := range a.providers {
		d := p.Descriptor()
		if !d.Capability.Covers(level) {
			// Methods below the required level are not candidates at all; in
			// particular a read-only API key never serves a write request.
			continue
		}
		if !p.Available() {
			failures = append(failures, Failure{
				MethodID: d.ID,
				Kind:     method.KindConfiguration,
				Err:      method.Errorf(method.KindConfiguration, d.ID, "method not configured"),
			})
			continue
		}
		if be := a.blockedError(d.ID); be != nil {
			failures = append(failures, Failure{MethodID: d.ID, Kind: be.Kind, Err: be})
			continue
		}

		cred, err := a.ensureAuthenticated(ctx, p, scopes)
		if err != nil {
			classified := method.Classify(d.ID, err)
			if classified.Kind.Blocked() {
				a.markBlocked(d.ID, classified)
			}
			logger.Warn("method failed", "method", d.ID, "kind", classified.Kind.String())
			failures = append(failures, Failure{MethodID: d.ID, Kind: classified.Kind, Err: classified})
			continue
		}

		transport, err := p.Transport(a.base, cred)
		if err != nil {
			classified := method.Classify(d.ID, err)
			failures = append(failures, Failure{MethodID: d.ID, Kind: classified.Kind, Err: classified})
			continue
		}

		logger.Info("authorized", "method", d.ID, "capability", d.Capability.String())
		return &Grant{Method: d, Credential: cred, Transport: transport}, nil
	}

	return nil, &AuthorizeError{Failures: failures}
}

// ensureAuthenticated returns a usable credential for one method: cached if
// fresh, refreshed if near expiry, acquired if absent or unrefreshable.
// Concurrent calls for the same method share a single execution.
func (a *Authenticator) ensureAuthenticated(ctx context.Context, p method.Provider, scopes []string) (*credstore.Credential, error) {
	id := p.Descriptor().ID
	v, err, _ := a.ensureGroup.Do(id, func() (any, error) {
		return a.ensure(ctx, p, scopes)
	})
	if err != nil {
		return nil, err
	}
	cred := v.(*credstore.Credential)

	// A caller that joined another request's in-flight execution shares that
	// request's result, which was validated against the other request's scope
	// set only. Re-check against this caller's scopes before handing it out.
	if !cred.HasScopes(scopes) {
		return nil, method.Errorf(method.KindScopeInsufficient, id,
			"credential lacks required scopes")
	}
	return cred, nil
}

func (a *Authenticator) ensure(ctx context.Context, p method.Provider, scopes []string) (*credstore.Credential, error) {
	id := p.Descriptor().ID

	cred, err := a.store.Load(ctx, id)
	switch {
	case err == nil:
		if !cred.HasScopes(scopes) {
			// Never silently widen a cached credential's scopes.
			return nil, method.Errorf(method.KindScopeInsufficient, id,
				"stored credential lacks required scopes")
		}
		if !cred.Expired(a.margin) {
			return cred, nil
		}
		if cred.Refreshable() {
			renewed, rerr := p.Refresh(ctx, cred)
			if rerr == nil {
				a.persist(ctx, id, renewed)
				return renewed, nil
			}
			if method.KindOf(rerr) != method.KindConsentRequired {
				return nil, rerr
			}
			// Refresh token revoked: fall through to a fresh consent cycle.
			a.logger.Info("stored credential no longer refreshable", "method", id)
		}
	case errors.Is(err, credstore.ErrNotFound):
		// No cached state, acquire below.
	default:
		return nil, method.E(method.KindConfiguration, id, err)
	}

	acquired, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired.HasScopes(scopes) {
		return nil, method.Errorf(method.KindScopeInsufficient, id,
			"acquired credential lacks required scopes")
	}
	a.persist(ctx, id, acquired)
	return acquired, nil
}

// persist saves a credential, logging instead of failing the authorization:
// the in-memory credential is still valid, only future runs lose the cache.
func (a *Authenticator) persist(ctx context.Context, id string, cred *credstore.Credential) {
	if err := a.store.Save(ctx, id, cred); err != nil {
		a.logger.Error("failed to persist credential", "method", id, "error", err)
	}
}

// Login runs acquisition (or refresh) for one specific method, persisting the
// result. Used by the CLI login command.
func (a *Authenticator) Login(ctx context.Context, methodID string) (*credstore.Credential, error) {
	p, err := a.provider(methodID)
	if err != nil {
		return nil, err
	}
	if !p.Available() {
		return nil, method.Errorf(method.KindConfiguration, methodID, "method not configured")
	}

	cred, err := p.Acquire(ctx)
	if err != nil {
		classified := method.Classify(methodID, err)
		if classified.Kind.Blocked() {
			a.markBlocked(methodID, classified)
		}
		return nil, classified
	}
	a.persist(ctx, methodID, cred)
	a.clearBlocked(methodID)
	return cred, nil
}

// Status reports each configured method's credential state in priority order.
func (a *Authenticator) Status(ctx context.Context) []MethodStatus {
	statuses := make([]MethodStatus, 0, len(a.providers))
	for _, p := range a.providers {
		d := p.Descriptor()
		state, reason := a.stateOf(ctx, p)
		statuses = append(statuses, MethodStatus{
			Method: d,
			State:  state,
			Reason: reason,
		})
	}
	return statuses
}

func (a *Authenticator) stateOf(ctx context.Context, p method.Provider) (State, string) {
	d := p.Descriptor()

	if !p.Available() {
		return StateNotConfigured, ""
	}
	if be := a.blockedError(d.ID); be != nil {
		return StateBlocked, be.Kind.String()
	}

	cred, err := a.store.Load(ctx, d.ID)
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		if d.ID == method.IDOAuth {
			// Configured but never consented.
			return StateConsentRequired, ""
		}
		// API key and service account material is usable on demand.
		return StateAuthenticated, ""
	case err != nil:
		// A store that cannot be read is not a consent problem.
		return StateError, err.Error()
	}

	if !cred.Expired(a.margin) {
		return StateAuthenticated, ""
	}
	if cred.Refreshable() {
		return StateExpiredRefreshable, ""
	}
	return StateConsentRequired, ""
}

// Revoke clears one method's stored credential and any blocked marker.
func (a *Authenticator) Revoke(ctx context.Context, methodID string) error {
	if _, err := a.provider(methodID); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, methodID); err != nil {
		return fmt.Errorf("revoking %s: %w", methodID, err)
	}
	a.clearBlocked(methodID)
	a.logger.Info("credential revoked", "method", methodID)
	return nil
}

func (a *Authenticator) provider(methodID string) (method.Provider, error) {
	for _, p := range a.providers {
		if p.Descriptor().ID == methodID {
			return p, nil
		}
	}
	return nil, method.Errorf(method.KindConfiguration, methodID, "unknown authentication method")
}

func (a *Authenticator) blockedError(methodID string) *method.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocked[methodID]
}

func (a *Authenticator) markBlocked(methodID string, err *method.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocked[methodID] = err
}

func (a *Authenticator) clearBlocked(methodID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blocked, methodID)
}
