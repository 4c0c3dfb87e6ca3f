package credstore

import (
	"fmt"
	"time"
)

// Kind identifies which credential variant a record holds.
type Kind string

const (
	KindOAuthToken     Kind = "oauth_token"
	KindAPIKey         Kind = "api_key"
	KindServiceAccount Kind = "service_account"
)

// OAuthToken holds the material produced by an OAuth2 authorization-code or
// refresh-token exchange.
type OAuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// APIKey holds a static, non-expiring API key.
type APIKey struct {
	Key string `json:"key"`
}

// ServiceAccountKey identifies a service account and references its private
// signing key. The key material itself stays in the provider-issued key file
// and is never copied into the record.
type ServiceAccountKey struct {
	ClientEmail string `json:"client_email"`
	KeyFile     string `json:"key_file"`
}

// Credential is a tagged union over the three credential variants. Exactly one
// variant is populated per record, and every record carries the scope set the
// credential was granted.
type Credential struct {
	Kind      Kind      `json:"kind"`
	Scopes    []string  `json:"scopes"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	OAuth          *OAuthToken        `json:"oauth,omitempty"`
	APIKey         *APIKey            `json:"api_key,omitempty"`
	ServiceAccount *ServiceAccountKey `json:"service_account,omitempty"`
}

// Validate checks the tagged-union invariant: exactly one variant populated,
// matching the declared kind, with a non-empty scope set.
func (c *Credential) Validate() error {
	if len(c.Scopes) == 0 {
		return fmt.Errorf("credential has empty scope set")
	}

	populated := 0
	if c.OAuth != nil {
		populated++
	}
	if c.APIKey != nil {
		populated++
	}
	if c.ServiceAccount != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("credential must populate exactly one variant, got %d", populated)
	}

	switch c.Kind {
	case KindOAuthToken:
		if c.OAuth == nil {
			return fmt.Errorf("kind %s without oauth variant", c.Kind)
		}
		if c.OAuth.AccessToken == "" && c.OAuth.RefreshToken == "" {
			return fmt.Errorf("oauth credential has neither access nor refresh token")
		}
	case KindAPIKey:
		if c.APIKey == nil {
			return fmt.Errorf("kind %s without api_key variant", c.Kind)
		}
		if c.APIKey.Key == "" {
			return fmt.Errorf("api key credential is empty")
		}
	case KindServiceAccount:
		if c.ServiceAccount == nil {
			return fmt.Errorf("kind %s without service_account variant", c.Kind)
		}
		if c.ServiceAccount.KeyFile == "" {
			return fmt.Errorf("service account credential has no key file reference")
		}
	default:
		return fmt.Errorf("unknown credential kind %q", c.Kind)
	}

	return nil
}

// Expired reports whether the credential is expired, or will expire within the
// given safety margin. Variants without an expiry never expire.
func (c *Credential) Expired(margin time.Duration) bool {
	if c.OAuth == nil || c.OAuth.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(c.OAuth.Expiry)
}

// Refreshable reports whether an expired credential can be renewed without an
// interactive step. Service accounts always re-mint; OAuth tokens need a
// refresh token.
func (c *Credential) Refreshable() bool {
	switch c.Kind {
	case KindOAuthToken:
		return c.OAuth != nil && c.OAuth.RefreshToken != ""
	case KindServiceAccount:
		return true
	default:
		return false
	}
}

// HasScopes reports whether the credential's granted scope set covers every
// requested scope.
func (c *Credential) HasScopes(scopes []string) bool {
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// String returns a redacted description safe for logging. Secret material is
// never included.
func (c *Credential) String() string {
	return fmt.Sprintf("credential{kind=%s scopes=%d}", c.Kind, len(c.Scopes))
}
