package authn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scubapro711/youtube-autopilot/internal/method"
)

// YouTube scope vocabulary. Every capability maps into this set; a
// configuration naming a scope outside it is rejected at load time.
const (
	ScopeYouTubeReadonly         = "https://www.googleapis.com/auth/youtube.readonly"
	ScopeYouTube                 = "https://www.googleapis.com/auth/youtube"
	ScopeYouTubeUpload           = "https://www.googleapis.com/auth/youtube.upload"
	ScopeYouTubeForceSSL         = "https://www.googleapis.com/auth/youtube.force-ssl"
	ScopeYouTubePartner          = "https://www.googleapis.com/auth/youtubepartner"
	ScopeAnalyticsReadonly       = "https://www.googleapis.com/auth/yt-analytics.readonly"
	ScopeAnalyticsMonetaryRead   = "https://www.googleapis.com/auth/yt-analytics-monetary.readonly"
)

var knownScopes = map[string]struct{}{
	ScopeYouTubeReadonly:       {},
	ScopeYouTube:               {},
	ScopeYouTubeUpload:         {},
	ScopeYouTubeForceSSL:       {},
	ScopeYouTubePartner:        {},
	ScopeAnalyticsReadonly:     {},
	ScopeAnalyticsMonetaryRead: {},
}

// CapabilitySpec ties an operation kind to the scopes it needs and the method
// capability level it demands.
type CapabilitySpec struct {
	Scopes []string
	Level  method.Capability
}

// defaultCapabilities is the built-in mapping from operation kinds to minimal
// scope sets.
func defaultCapabilities() map[string]CapabilitySpec {
	return map[string]CapabilitySpec{
		"read-channel": {
			Scopes: []string{ScopeYouTubeReadonly},
			Level:  method.CapabilityReadOnly,
		},
		"read-analytics": {
			Scopes: []string{ScopeAnalyticsReadonly},
			Level:  method.CapabilityReadOnly,
		},
		"read-analytics-monetary": {
			Scopes: []string{ScopeAnalyticsMonetaryRead},
			Level:  method.CapabilityReadOnly,
		},
		"upload-video": {
			Scopes: []string{ScopeYouTubeUpload},
			Level:  method.CapabilityReadWrite,
		},
		"manage-videos": {
			Scopes: []string{ScopeYouTubeForceSSL},
			Level:  method.CapabilityReadWrite,
		},
		"manage-channel": {
			Scopes: []string{ScopeYouTube, ScopeYouTubePartner},
			Level:  method.CapabilityFullManagement,
		},
	}
}

// ScopePolicy maps requested operation kinds to the minimal scope set and
// capability level they require.
type ScopePolicy struct {
	caps map[string]CapabilitySpec
}

// DefaultPolicy returns the built-in capability mapping.
func DefaultPolicy() *ScopePolicy {
	return &ScopePolicy{caps: defaultCapabilities()}
}

// NewPolicy builds a policy from the defaults merged with configured
// overrides. Override levels are inferred from the scope strings: a
// capability whose scopes are all read-only stays read-only, anything else
// demands read-write.
func NewPolicy(overrides map[string][]string) (*ScopePolicy, error) {
	caps := defaultCapabilities()

	for name, scopes := range overrides {
		if len(scopes) == 0 {
			return nil, fmt.Errorf("capability %q maps to an empty scope set", name)
		}
		for _, s := range scopes {
			if _, ok := knownScopes[s]; !ok {
				return nil, fmt.Errorf("capability %q names unknown scope %q", name, s)
			}
		}
		level := method.CapabilityReadOnly
		for _, s := range scopes {
			if !strings.HasSuffix(s, ".readonly") {
				level = method.CapabilityReadWrite
				break
			}
		}
		if prev, ok := caps[name]; ok && prev.Level > level {
			// Never let an override weaken the level a built-in operation
			// kind demands.
			level = prev.Level
		}
		caps[name] = CapabilitySpec{Scopes: scopes, Level: level}
	}

	return &ScopePolicy{caps: caps}, nil
}

// Resolve returns the union of scopes and the highest capability level the
// requested operation kinds require.
func (p *ScopePolicy) Resolve(capabilities []string) ([]string, method.Capability, error) {
	if len(capabilities) == 0 {
		return nil, 0, fmt.Errorf("request names no capabilities")
	}

	scopeSet := make(map[string]struct{})
	level := method.CapabilityReadOnly
	for _, name := range capabilities {
		spec, ok := p.caps[name]
		if !ok {
			return nil, 0, fmt.Errorf("unknown capability %q", name)
		}
		for _, s := range spec.Scopes {
			scopeSet[s] = struct{}{}
		}
		if spec.Level > level {
			level = spec.Level
		}
	}

	scopes := make([]string, 0, len(scopeSet))
	for s := range scopeSet {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes, level, nil
}

// Capabilities lists the known operation kinds, sorted.
func (p *ScopePolicy) Capabilities() []string {
	names := make([]string, 0, len(p.caps))
	for name := range p.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
