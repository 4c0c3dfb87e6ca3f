package credstore

import (
	"strings"
	"testing"
	"time"
)

func TestCredentialValidate(t *testing.T) {
	tests := []struct {
		name    string
		cred    Credential
		wantErr bool
	}{
		{
			name: "valid oauth",
			cred: Credential{
				Kind:   KindOAuthToken,
				Scopes: []string{"https://www.googleapis.com/auth/youtube"},
				OAuth:  &OAuthToken{AccessToken: "tok"},
			},
		},
		{
			name: "valid api key",
			cred: Credential{
				Kind:   KindAPIKey,
				Scopes: []string{"https://www.googleapis.com/auth/youtube.readonly"},
				APIKey: &APIKey{Key: "AIza-test"},
			},
		},
		{
			name: "valid service account",
			cred: Credential{
				Kind:           KindServiceAccount,
				Scopes:         []string{"https://www.googleapis.com/auth/youtube"},
				ServiceAccount: &ServiceAccountKey{ClientEmail: "sa@example.iam", KeyFile: "/etc/sa.json"},
			},
		},
		{
			name:    "empty scopes",
			cred:    Credential{Kind: KindAPIKey, APIKey: &APIKey{Key: "k"}},
			wantErr: true,
		},
		{
			name: "no variant",
			cred: Credential{
				Kind:   KindOAuthToken,
				Scopes: []string{"a"},
			},
			wantErr: true,
		},
		{
			name: "two variants",
			cred: Credential{
				Kind:   KindOAuthToken,
				Scopes: []string{"a"},
				OAuth:  &OAuthToken{AccessToken: "tok"},
				APIKey: &APIKey{Key: "k"},
			},
			wantErr: true,
		},
		{
			name: "kind mismatch",
			cred: Credential{
				Kind:   KindAPIKey,
				Scopes: []string{"a"},
				OAuth:  &OAuthToken{AccessToken: "tok"},
			},
			wantErr: true,
		},
		{
			name: "oauth without any token",
			cred: Credential{
				Kind:   KindOAuthToken,
				Scopes: []string{"a"},
				OAuth:  &OAuthToken{},
			},
			wantErr: true,
		},
		{
			name: "unknown kind",
			cred: Credential{
				Kind:   Kind("pickle"),
				Scopes: []string{"a"},
				OAuth:  &OAuthToken{AccessToken: "tok"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentialExpired(t *testing.T) {
	margin := time.Minute

	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{
			name: "expired",
			cred: Credential{OAuth: &OAuthToken{Expiry: time.Now().Add(-10 * time.Minute)}},
			want: true,
		},
		{
			name: "inside safety margin",
			cred: Credential{OAuth: &OAuthToken{Expiry: time.Now().Add(30 * time.Second)}},
			want: true,
		},
		{
			name: "fresh",
			cred: Credential{OAuth: &OAuthToken{Expiry: time.Now().Add(time.Hour)}},
			want: false,
		},
		{
			name: "no expiry",
			cred: Credential{OAuth: &OAuthToken{AccessToken: "tok"}},
			want: false,
		},
		{
			name: "api key never expires",
			cred: Credential{Kind: KindAPIKey, APIKey: &APIKey{Key: "k"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Expired(margin); got != tt.want {
				t.Errorf("Expired(%v) = %v, want %v", margin, got, tt.want)
			}
		})
	}
}

func TestCredentialRefreshable(t *testing.T) {
	withRefresh := Credential{Kind: KindOAuthToken, OAuth: &OAuthToken{RefreshToken: "r"}}
	if !withRefresh.Refreshable() {
		t.Error("oauth with refresh token should be refreshable")
	}

	withoutRefresh := Credential{Kind: KindOAuthToken, OAuth: &OAuthToken{AccessToken: "a"}}
	if withoutRefresh.Refreshable() {
		t.Error("oauth without refresh token should not be refreshable")
	}

	sa := Credential{Kind: KindServiceAccount, ServiceAccount: &ServiceAccountKey{KeyFile: "f"}}
	if !sa.Refreshable() {
		t.Error("service account should always be refreshable (re-mint)")
	}

	key := Credential{Kind: KindAPIKey, APIKey: &APIKey{Key: "k"}}
	if key.Refreshable() {
		t.Error("api key should not be refreshable")
	}
}

func TestCredentialHasScopes(t *testing.T) {
	cred := Credential{Scopes: []string{"a", "b"}}

	if !cred.HasScopes([]string{"a"}) {
		t.Error("subset not covered")
	}
	if !cred.HasScopes([]string{"a", "b"}) {
		t.Error("exact set not covered")
	}
	if cred.HasScopes([]string{"a", "c"}) {
		t.Error("missing scope reported as covered")
	}
	if !cred.HasScopes(nil) {
		t.Error("empty request not covered")
	}
}

func TestCredentialStringRedactsSecrets(t *testing.T) {
	cred := Credential{
		Kind:   KindOAuthToken,
		Scopes: []string{"a"},
		OAuth:  &OAuthToken{AccessToken: "super-secret-access", RefreshToken: "super-secret-refresh"},
	}

	s := cred.String()
	if strings.Contains(s, "super-secret") {
		t.Errorf("String() leaked secret material: %s", s)
	}
}
