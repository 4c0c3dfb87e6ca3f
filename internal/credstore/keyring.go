package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringStore stores credential records in the OS-native credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Records are keyed by method id within a single keyring service.
type KeyringStore struct {
	service string

	mu      sync.Mutex
	writeMu map[string]*sync.Mutex
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using the given service identifier.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
		writeMu: make(map[string]*sync.Mutex),
	}, nil
}

func (k *KeyringStore) methodMu(methodID string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	mu, ok := k.writeMu[methodID]
	if !ok {
		mu = &sync.Mutex{}
		k.writeMu[methodID] = mu
	}
	return mu
}

// Load returns the credential stored for the method. A missing or unparsable
// secret is reported as ErrNotFound.
func (k *KeyringStore) Load(ctx context.Context, methodID string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, methodID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", methodID, ErrNotFound)
		}
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(secret), &cred); err != nil {
		return nil, fmt.Errorf("%s: corrupt record: %w", methodID, ErrNotFound)
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid record: %w", methodID, ErrNotFound)
	}

	return &cred, nil
}

// Save persists the credential, overwriting any existing record for the method.
func (k *KeyringStore) Save(ctx context.Context, methodID string, cred *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid credential: %w", err)
	}

	mu := k.methodMu(methodID)
	mu.Lock()
	defer mu.Unlock()

	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	return keyring.Set(k.service, methodID, string(data))
}

// Delete removes the stored credential. A missing record is not an error.
func (k *KeyringStore) Delete(ctx context.Context, methodID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := k.methodMu(methodID)
	mu.Lock()
	defer mu.Unlock()

	if err := keyring.Delete(k.service, methodID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
