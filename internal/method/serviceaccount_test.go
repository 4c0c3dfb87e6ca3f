package method

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
)

// writeServiceAccountKey generates a throwaway RSA key and writes a
// provider-style JSON key file pointing at the given token endpoint.
func writeServiceAccountKey(t *testing.T, tokenURL string) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling test key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	payload, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "autopilot@test-project.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    tokenURL,
	})
	if err != nil {
		t.Fatalf("marshaling key file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "service_account.json")
	if err := os.WriteFile(path, payload, 0600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	return path
}

func TestServiceAccountAcquire(t *testing.T) {
	var mints atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mints.Add(1)
		if got := r.FormValue("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q, want jwt-bearer", got)
		}
		if assertion := r.FormValue("assertion"); assertion == "" {
			t.Error("token request carries no signed assertion")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"sa-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	keyFile := writeServiceAccountKey(t, srv.URL)
	p := NewServiceAccount(ServiceAccountConfig{
		KeyFile: keyFile,
		Scopes:  []string{"https://www.googleapis.com/auth/youtube"},
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})

	cred, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := mints.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
	if cred.Kind != credstore.KindServiceAccount {
		t.Errorf("Kind = %q, want %q", cred.Kind, credstore.KindServiceAccount)
	}
	if cred.ServiceAccount.ClientEmail != "autopilot@test-project.iam.gserviceaccount.com" {
		t.Errorf("ClientEmail = %q", cred.ServiceAccount.ClientEmail)
	}
	if cred.ServiceAccount.KeyFile != keyFile {
		t.Errorf("KeyFile = %q, want %q", cred.ServiceAccount.KeyFile, keyFile)
	}

	// The short-lived bearer token is never part of the persisted record.
	raw, err := json.Marshal(cred)
	if err != nil {
		t.Fatalf("marshaling credential: %v", err)
	}
	if strings.Contains(string(raw), "sa-token") {
		t.Error("persisted record contains the minted bearer token")
	}
}

func TestServiceAccountRefreshReMints(t *testing.T) {
	var mints atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := mints.Add(1)
		w.Header().Set("Content-Type", "application/json")
		// Short expiry forces the cached source to re-mint on next use.
		fmt.Fprintf(w, `{"access_token":"sa-token-%d","token_type":"Bearer","expires_in":1}`, n)
	}))
	defer srv.Close()

	p := NewServiceAccount(ServiceAccountConfig{
		KeyFile: writeServiceAccountKey(t, srv.URL),
		Scopes:  []string{"https://www.googleapis.com/auth/youtube"},
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})

	ctx := context.Background()
	cred, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	renewed, err := p.Refresh(ctx, cred)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := mints.Load(); got < 2 {
		t.Errorf("token endpoint calls = %d, want a re-mint on refresh", got)
	}
	if renewed.ServiceAccount.KeyFile != cred.ServiceAccount.KeyFile {
		t.Error("Refresh changed the key file reference")
	}
}

func TestServiceAccountMissingKeyFile(t *testing.T) {
	p := NewServiceAccount(ServiceAccountConfig{
		KeyFile: filepath.Join(t.TempDir(), "missing.json"),
		Scopes:  []string{"https://www.googleapis.com/auth/youtube"},
	})

	_, err := p.Acquire(context.Background())
	if kind := KindOf(err); kind != KindConfiguration {
		t.Errorf("classified as %s, want %s", kind, KindConfiguration)
	}
}

func TestServiceAccountNotConfigured(t *testing.T) {
	p := NewServiceAccount(ServiceAccountConfig{})
	if p.Available() {
		t.Error("Available() = true with no key file")
	}
}
