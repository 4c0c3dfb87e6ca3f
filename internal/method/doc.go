// Package method implements the authentication methods available to the
// credential manager, behind a single Provider contract.
//
// Three providers are supported:
//   - OAuth: interactive OAuth2 authorization-code flow against Google's
//     endpoints, with a loopback-redirect and an out-of-band code-relay
//     variant, plus refresh-token renewal
//   - APIKey: a static developer key, read-only, never expires
//   - ServiceAccount: JWT bearer assertion exchanged for a short-lived token
//     without any interactive step
//
// Providers classify their failures into a small error taxonomy (see Error
// and ErrorKind) so the orchestrating authenticator can decide between
// retrying, falling back to another method, or surfacing the failure to a
// human operator.
package method
