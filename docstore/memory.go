package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore implements Store using in-memory maps. It mirrors the Supabase
// client's semantics so presence and applier code can run against it in
// tests and in single-process development mode.
type MemStore struct {
	mu            sync.RWMutex
	blocks        map[string]*Block
	versions      map[string][]BlockVersion
	comments      map[string]*Comment
	notifications []Notification
	sermons       map[string]*Sermon
	series        map[string]*Series
	collaborators map[string][]Collaborator

	updateErr error
}

// NewMemStore creates an empty in-memory document store.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks:        make(map[string]*Block),
		versions:      make(map[string][]BlockVersion),
		comments:      make(map[string]*Comment),
		sermons:       make(map[string]*Sermon),
		series:        make(map[string]*Series),
		collaborators: make(map[string][]Collaborator),
	}
}

// FailNextUpdate makes the next UpdateBlock call return err, then clears it.
// Used to exercise persistence-failure handling.
func (s *MemStore) FailNextUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

// SeedSermon installs a sermon record.
func (s *MemStore) SeedSermon(sermon *Sermon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sermons[sermon.ID] = sermon
}

// SeedSeries installs a series record.
func (s *MemStore) SeedSeries(sr *Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[sr.ID] = sr
}

// SeedCollaborator installs a collaborator grant.
func (s *MemStore) SeedCollaborator(c Collaborator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.DocumentKind + ":" + c.DocumentID
	s.collaborators[key] = append(s.collaborators[key], c)
}

// SeedBlock installs a block record.
func (s *MemStore) SeedBlock(b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.ID] = b
}

// Versions returns the version history recorded for a block.
func (s *MemStore) Versions(blockID string) []BlockVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BlockVersion, len(s.versions[blockID]))
	copy(out, s.versions[blockID])
	return out
}

// Notifications returns all notification records created so far.
func (s *MemStore) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// GetBlock implements Store.
func (s *MemStore) GetBlock(ctx context.Context, blockID string) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// CreateBlock implements Store.
func (s *MemStore) CreateBlock(ctx context.Context, block *Block) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	now := time.Now()
	block.CreatedAt = now
	block.UpdatedAt = now

	cp := *block
	s.blocks[block.ID] = &cp
	return block, nil
}

// UpdateBlock implements Store.
func (s *MemStore) UpdateBlock(ctx context.Context, blockID, content string) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return nil, err
	}

	b, ok := s.blocks[blockID]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}
	b.Content = content
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

// DeleteBlock implements Store.
func (s *MemStore) DeleteBlock(ctx context.Context, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[blockID]; !ok {
		return fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}
	delete(s.blocks, blockID)
	return nil
}

// AppendVersion implements Store.
func (s *MemStore) AppendVersion(ctx context.Context, version *BlockVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.CreatedAt = time.Now()
	s.versions[version.BlockID] = append(s.versions[version.BlockID], *version)
	return nil
}

// CreateComment implements Store.
func (s *MemStore) CreateComment(ctx context.Context, comment *Comment) (*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now()
	comment.CreatedAt = now
	comment.UpdatedAt = now

	cp := *comment
	s.comments[comment.ID] = &cp
	return comment, nil
}

// ResolveComment implements Store.
func (s *MemStore) ResolveComment(ctx context.Context, commentID, resolvedBy string) (*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	c.Resolved = true
	c.ResolvedBy = resolvedBy
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

// CreateNotification implements Store.
func (s *MemStore) CreateNotification(ctx context.Context, notification *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = time.Now()
	s.notifications = append(s.notifications, *notification)
	return nil
}

// GetSermon implements Store.
func (s *MemStore) GetSermon(ctx context.Context, sermonID string) (*Sermon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sermon, ok := s.sermons[sermonID]
	if !ok {
		return nil, fmt.Errorf("sermon %s: %w", sermonID, ErrNotFound)
	}
	cp := *sermon
	return &cp, nil
}

// GetSeries implements Store.
func (s *MemStore) GetSeries(ctx context.Context, seriesID string) (*Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[seriesID]
	if !ok {
		return nil, fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}
	cp := *sr
	return &cp, nil
}

// ListCollaborators implements Store.
func (s *MemStore) ListCollaborators(ctx context.Context, documentKind, documentID string) ([]Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := documentKind + ":" + documentID
	out := make([]Collaborator, len(s.collaborators[key]))
	copy(out, s.collaborators[key])
	return out, nil
}

// Close implements Store.
func (s *MemStore) Close() error {
	return nil
}

// Compile-time check that MemStore implements Store
var _ Store = (*MemStore)(nil)
