package method

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// ErrorKind classifies an authentication failure into the categories the
// authenticator's fallback logic acts on.
type ErrorKind int

const (
	// KindConfiguration: missing or malformed credential material. Fatal,
	// never retried.
	KindConfiguration ErrorKind = 1 + iota

	// KindConsentRequired: no usable cached credential and an interactive
	// consent step is needed. Surfaced to the operator, not retried.
	KindConsentRequired

	// KindBlockedAllowlist: the consent screen rejected the account because
	// the application is in a restricted review state and the account is not
	// on the test allowlist.
	KindBlockedAllowlist

	// KindBlockedPolicy: an account-level protection policy blocks
	// third-party token issuance regardless of consent-screen state.
	KindBlockedPolicy

	// KindQuotaExceeded: the provider rejected the request for quota or rate
	// reasons. Terminal for this method this session.
	KindQuotaExceeded

	// KindScopeInsufficient: the cached credential lacks a required scope.
	// Terminal for that method, never silently widened.
	KindScopeInsufficient

	// KindTransient: network failure or provider 5xx. Retried per policy,
	// then surfaced.
	KindTransient

	// KindTimeout: a consent flow or attempt deadline elapsed.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConsentRequired:
		return "consent-required"
	case KindBlockedAllowlist:
		return "blocked-allowlist"
	case KindBlockedPolicy:
		return "blocked-account-protection"
	case KindQuotaExceeded:
		return "quota-exceeded"
	case KindScopeInsufficient:
		return "scope-insufficient"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("error-kind(%d)", int(k))
	}
}

// Blocked reports whether the kind is a provider-side policy rejection that
// is terminal for the method this session. The authenticator falls back to
// the next candidate method on Blocked failures.
func (k ErrorKind) Blocked() bool {
	switch k {
	case KindBlockedAllowlist, KindBlockedPolicy, KindQuotaExceeded:
		return true
	default:
		return false
	}
}

// Retryable reports whether the failure may succeed on a retry of the same
// operation.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// Error is a classified authentication failure tied to the method that
// produced it.
type Error struct {
	Kind   ErrorKind
	Method string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Method, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Method, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and method id. Returns *Error for use as a typed
// provider failure.
func E(kind ErrorKind, methodID string, err error) *Error {
	return &Error{Kind: kind, Method: methodID, Err: err}
}

// Errorf is E with a formatted message instead of a wrapped cause.
func Errorf(kind ErrorKind, methodID, format string, args ...any) *Error {
	return &Error{Kind: kind, Method: methodID, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from a classified error chain. Unclassified
// errors report KindTransient for context timeouts and KindConfiguration
// otherwise.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindConfiguration
}

// Classify inspects a token-endpoint or transport error and wraps it with the
// matching ErrorKind. Already-classified errors pass through unchanged.
func Classify(methodID string, err error) *Error {
	if err == nil {
		return nil
	}

	var me *Error
	if errors.As(err, &me) {
		return me
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return E(KindTimeout, methodID, err)
	}
	if errors.Is(err, context.Canceled) {
		return E(KindTimeout, methodID, err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return E(classifyRetrieve(re), methodID, err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return E(KindTransient, methodID, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return E(KindTransient, methodID, err)
	}

	return E(KindConfiguration, methodID, err)
}

// classifyRetrieve maps an RFC 6749 token-endpoint error response to a kind.
func classifyRetrieve(re *oauth2.RetrieveError) ErrorKind {
	desc := strings.ToLower(re.ErrorDescription)

	switch re.ErrorCode {
	case "invalid_grant":
		// Expired or revoked code/refresh token. The method needs a fresh
		// consent cycle, not a retry.
		return KindConsentRequired
	case "access_denied", "org_internal", "admin_policy_enforced":
		if re.ErrorCode == "admin_policy_enforced" ||
			strings.Contains(desc, "policy") || strings.Contains(desc, "advanced protection") {
			return KindBlockedPolicy
		}
		return KindBlockedAllowlist
	case "invalid_scope":
		return KindScopeInsufficient
	case "rate_limit_exceeded", "quota_exceeded":
		return KindQuotaExceeded
	case "invalid_client", "unauthorized_client", "invalid_request", "unsupported_grant_type":
		return KindConfiguration
	}

	if re.Response != nil {
		switch {
		case re.Response.StatusCode == 429:
			return KindQuotaExceeded
		case re.Response.StatusCode >= 500:
			return KindTransient
		}
	}

	return KindConfiguration
}
