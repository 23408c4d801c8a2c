// Package snapshot persists last-known data point values across
// process restarts, so a deck shows recent values immediately while
// the simulator connection is re-established.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Version is the current snapshot file format version.
const Version = 1

// Snapshot is the on-disk value cache.
type Snapshot struct {
	Version int            `cbor:"1,keyasint"`
	SavedAt time.Time      `cbor:"2,keyasint"`
	Values  map[string]any `cbor:"3,keyasint"`
}

// Store reads and writes CBOR snapshots at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes values to disk, replacing any previous snapshot.
func (s *Store) Save(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}

	data, err := cbor.Marshal(&Snapshot{
		Version: Version,
		SavedAt: time.Now(),
		Values:  values,
	})
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// Load reads the snapshot values from disk. A missing file is empty
// state, not an error.
func (s *Store) Load() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	return snap.Values, nil
}
