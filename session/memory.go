package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory maps with optimistic locking.
// Records are copied on the way in and out so callers observe the same
// read-your-own-snapshot semantics as the Redis driver.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	channels map[string]map[string]struct{}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		channels: make(map[string]map[string]struct{}),
	}
}

// Create implements Store.
// Creates a new record with Version set to 1.
// Returns ErrAlreadyExists if a record with the same ID is present, so two
// racing first writers cannot silently overwrite each other.
func (s *MemoryStore) Create(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return ErrAlreadyExists
	}

	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.Version = 1

	s.records[record.ID] = copyRecord(record)
	return nil
}

// Get implements Store.
// Returns nil if the record is not found (not an error).
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, nil // Not found
	}
	return copyRecord(record), nil
}

// Update implements Store.
// Implements optimistic locking: verifies Version matches, increments it,
// updates UpdatedAt, and persists the record.
// Returns ErrVersionConflict if the version does not match.
// Returns ErrNotFound if the record does not exist.
func (s *MemoryStore) Update(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[record.ID]
	if !exists {
		return ErrNotFound
	}

	// Check version for optimistic locking
	if stored.Version != record.Version {
		return ErrVersionConflict
	}

	// Increment version and update timestamp
	record.Version++
	record.UpdatedAt = time.Now()

	s.records[record.ID] = copyRecord(record)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// AddUserChannel implements Store.
func (s *MemoryStore) AddUserChannel(ctx context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.channels[userID]
	if !ok {
		set = make(map[string]struct{})
		s.channels[userID] = set
	}
	set[channelID] = struct{}{}
	return nil
}

// RemoveUserChannel implements Store.
func (s *MemoryStore) RemoveUserChannel(ctx context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.channels[userID]; ok {
		delete(set, channelID)
		if len(set) == 0 {
			delete(s.channels, userID)
		}
	}
	return nil
}

// UserChannels implements Store.
func (s *MemoryStore) UserChannels(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.channels[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.channels = nil
	return nil
}

// copyRecord round-trips a record through JSON, the same serialization the
// Redis driver uses.
func copyRecord(r *Record) *Record {
	b, err := json.Marshal(r)
	if err != nil {
		// Record contains only JSON-safe fields.
		panic(err)
	}
	var cp Record
	if err := json.Unmarshal(b, &cp); err != nil {
		panic(err)
	}
	if cp.Participants == nil {
		cp.Participants = make(map[string]*Participant)
	}
	if cp.Locks == nil {
		cp.Locks = make(map[string]*Lock)
	}
	return &cp
}

// Compile-time check that MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
