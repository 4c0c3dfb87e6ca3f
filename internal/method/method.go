package method

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/scubapro711/youtube-autopilot/internal/credstore"
)

// Method ids. These key credential records in the store and appear in
// configuration (method_priority) and status output.
const (
	IDOAuth          = "oauth"
	IDAPIKey         = "api_key"
	IDServiceAccount = "service_account"
)

// Capability is the level of API access a method can offer. Levels are
// ordered: a higher level covers every lower one.
type Capability int

const (
	CapabilityReadOnly Capability = 1 + iota
	CapabilityReadWrite
	CapabilityFullManagement
)

// Covers reports whether this capability level satisfies the required one.
func (c Capability) Covers(required Capability) bool {
	return c >= required
}

func (c Capability) String() string {
	switch c {
	case CapabilityReadOnly:
		return "read-only"
	case CapabilityReadWrite:
		return "read-write"
	case CapabilityFullManagement:
		return "full-management"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// ParseCapability parses a capability level from its configuration spelling.
func ParseCapability(s string) (Capability, error) {
	switch s {
	case "read-only":
		return CapabilityReadOnly, nil
	case "read-write":
		return CapabilityReadWrite, nil
	case "full-management":
		return CapabilityFullManagement, nil
	default:
		return 0, fmt.Errorf("unknown capability level %q", s)
	}
}

// Descriptor describes a method for selection purposes: its identity, its
// position in the fallback order (lower priority rank is tried first), and
// the capability level it can offer.
type Descriptor struct {
	ID         string
	Priority   int
	Capability Capability
}

// Provider is the contract every authentication method implements.
//
// Acquire may block on user interaction (OAuth consent); the other operations
// never do. All network activity respects the passed context.
type Provider interface {
	Descriptor() Descriptor

	// Available reports whether the provider has enough configuration to
	// attempt authentication at all.
	Available() bool

	// Acquire obtains a fresh credential, interactively if the method
	// requires it. The returned credential is ready to persist.
	Acquire(ctx context.Context) (*credstore.Credential, error)

	// Refresh renews a near-expiry credential without user interaction.
	// Returns the renewed credential, which replaces the stored one in a
	// single write.
	Refresh(ctx context.Context, cred *credstore.Credential) (*credstore.Credential, error)

	// Transport returns a RoundTripper that attaches the credential to
	// outgoing requests. base may be nil to use http.DefaultTransport.
	Transport(base http.RoundTripper, cred *credstore.Credential) (http.RoundTripper, error)
}

// SortProviders orders providers by priority rank ascending, ties broken by
// capability level descending (prefer the method offering the most access).
func SortProviders(providers []Provider) {
	sort.SliceStable(providers, func(i, j int) bool {
		di, dj := providers[i].Descriptor(), providers[j].Descriptor()
		if di.Priority != dj.Priority {
			return di.Priority < dj.Priority
		}
		return di.Capability > dj.Capability
	})
}
