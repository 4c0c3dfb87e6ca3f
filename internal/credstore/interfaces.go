package credstore

import (
	"context"
	"errors"
)

// ErrNotFound reports that no usable credential record exists for a method.
// Corrupt or partially written records are classified as ErrNotFound so the
// caller re-acquires instead of failing on unreadable state.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes credential records, keyed by authentication method id.
//
// Concurrent Load calls are safe. Concurrent Save calls for the same method id
// are serialized by the implementation; last write wins, no merge semantics.
type Store interface {
	// Load returns the stored credential for the method. Returns ErrNotFound
	// if no record exists or the record is unreadable.
	Load(ctx context.Context, methodID string) (*Credential, error)

	// Save persists the credential for the method, replacing any existing
	// record in a single atomic write.
	Save(ctx context.Context, methodID string, cred *Credential) error

	// Delete removes the stored credential for the method. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, methodID string) error
}
