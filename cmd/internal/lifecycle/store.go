package lifecycle

import (
	"context"
	"sync"
)

// Store persists a Manager snapshot across restarts.
//
// Implementations treat the active record and the passive record set as two
// independent records: a broken one must not prevent loading the other.
// A missing active token is stored as an absent record, never a sentinel.
type Store interface {
	// Save overwrites both records. Safe to call repeatedly.
	Save(ctx context.Context, snap Snapshot) error

	// Load reconstructs the snapshot. Malformed records are dropped with a
	// diagnostic; the error is reserved for the store being unreachable.
	Load(ctx context.Context) (Snapshot, error)

	// Clear removes all persisted records.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the snapshot in process memory. State does not survive a
// restart; it is used when no persistence path is configured.
type MemoryStore struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = NewManagerFromSnapshot(snap).Snapshot()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewManagerFromSnapshot(s.snap).Snapshot(), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
	return nil
}
