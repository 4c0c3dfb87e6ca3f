package method

import (
	"context"
	"net/http"
	"testing"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
)

// staticProvider is a descriptor-only provider for ordering tests.
type staticProvider struct {
	d Descriptor
}

func (s staticProvider) Descriptor() Descriptor { return s.d }
func (s staticProvider) Available() bool        { return true }
func (s staticProvider) Acquire(context.Context) (*credstore.Credential, error) {
	return nil, Errorf(KindConfiguration, s.d.ID, "not implemented")
}
func (s staticProvider) Refresh(_ context.Context, c *credstore.Credential) (*credstore.Credential, error) {
	return c, nil
}
func (s staticProvider) Transport(base http.RoundTripper, _ *credstore.Credential) (http.RoundTripper, error) {
	return base, nil
}

func TestCapabilityCovers(t *testing.T) {
	tests := []struct {
		have, need Capability
		want       bool
	}{
		{CapabilityReadOnly, CapabilityReadOnly, true},
		{CapabilityReadOnly, CapabilityReadWrite, false},
		{CapabilityReadOnly, CapabilityFullManagement, false},
		{CapabilityReadWrite, CapabilityReadOnly, true},
		{CapabilityReadWrite, CapabilityFullManagement, false},
		{CapabilityFullManagement, CapabilityReadWrite, true},
	}

	for _, tt := range tests {
		if got := tt.have.Covers(tt.need); got != tt.want {
			t.Errorf("%s.Covers(%s) = %v, want %v", tt.have, tt.need, got, tt.want)
		}
	}
}

func TestParseCapability(t *testing.T) {
	for _, s := range []string{"read-only", "read-write", "full-management"} {
		c, err := ParseCapability(s)
		if err != nil {
			t.Errorf("ParseCapability(%q): %v", s, err)
		}
		if c.String() != s {
			t.Errorf("round trip %q -> %s", s, c)
		}
	}
	if _, err := ParseCapability("root"); err == nil {
		t.Error("ParseCapability accepted unknown level")
	}
}

func TestSortProviders(t *testing.T) {
	providers := []Provider{
		staticProvider{Descriptor{ID: "c", Priority: 2, Capability: CapabilityReadOnly}},
		staticProvider{Descriptor{ID: "a", Priority: 1, Capability: CapabilityReadOnly}},
		staticProvider{Descriptor{ID: "b", Priority: 1, Capability: CapabilityFullManagement}},
	}

	SortProviders(providers)

	got := []string{
		providers[0].Descriptor().ID,
		providers[1].Descriptor().ID,
		providers[2].Descriptor().ID,
	}
	// Priority ascending; within equal priority the higher capability first.
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
