package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore stores one JSON record per method id under a credentials
// directory. Writes use temp file + rename for crash safety.
type FileStore struct {
	dir string

	mu      sync.Mutex
	writeMu map[string]*sync.Mutex
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating the directory with
// 0700 permissions if it doesn't exist.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("credentials directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		dir:     dir,
		writeMu: make(map[string]*sync.Mutex),
	}, nil
}

func (f *FileStore) path(methodID string) string {
	return filepath.Join(f.dir, methodID+".json")
}

// methodMu returns the per-method write lock, creating it on first use.
func (f *FileStore) methodMu(methodID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	mu, ok := f.writeMu[methodID]
	if !ok {
		mu = &sync.Mutex{}
		f.writeMu[methodID] = mu
	}
	return mu
}

// Load reads and validates the record for the method. A missing, corrupt, or
// invalid record is reported as ErrNotFound; a file with permissions wider
// than 0600 is a hard error, not an invitation to re-acquire over it.
func (f *FileStore) Load(ctx context.Context, methodID string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := f.path(methodID)

	// Check file permissions before reading
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", methodID, ErrNotFound)
		}
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// Corrupt record: treat as absent so the caller re-acquires.
		return nil, fmt.Errorf("%s: corrupt record: %w", methodID, ErrNotFound)
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid record: %w", methodID, ErrNotFound)
	}

	return &cred, nil
}

// Save atomically writes the record using temp file + rename. Sets file
// permissions to 0600 (owner read/write only). Concurrent saves for the same
// method id are serialized; last write wins.
func (f *FileStore) Save(ctx context.Context, methodID string, cred *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid credential: %w", err)
	}

	mu := f.methodMu(methodID)
	mu.Lock()
	defer mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	tempFile, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if _, err := tempFile.Write(append(data, '\n')); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// Atomic rename to final location
	return os.Rename(tempName, f.path(methodID))
}

// Delete removes the record for the method. A missing record is not an error.
func (f *FileStore) Delete(ctx context.Context, methodID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := f.methodMu(methodID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(f.path(methodID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
