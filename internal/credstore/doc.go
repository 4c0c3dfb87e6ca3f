// Package credstore provides persistent storage for authentication credentials,
// one record per authentication method.
//
// Supports two storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Records are structured JSON. A missing, truncated, or otherwise unreadable
// record is reported as ErrNotFound so callers can fall back to a fresh
// acquisition instead of crashing on corrupt state.
package credstore
