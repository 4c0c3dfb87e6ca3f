// Package authn orchestrates credential acquisition across the configured
// authentication methods.
//
// Authorize filters methods by the capability level a request needs, walks
// them in priority order, and returns a transport bound to the first method
// that authenticates. Cached credentials are preferred over refresh, and
// refresh over any interactive acquisition; a method blocked by provider
// policy is skipped in favor of the next candidate instead of failing the
// whole request. A write-level request is never satisfied by a read-only
// method.
package authn
