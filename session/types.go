package session

import "time"

// Cursor is a participant's position within the document.
type Cursor struct {
	BlockID string `json:"block_id"`
	Offset  int    `json:"offset"`
}

// Participant represents one connected user within a session.
type Participant struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Cursor      *Cursor   `json:"cursor,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	LastActive  time.Time `json:"last_active"`
}

// Lock is an advisory, block-scoped edit lock held by one participant.
type Lock struct {
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the lock is no longer honored at the given time.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// OpEntry is one entry in the session's bounded diagnostic operation log.
// It is not the source of truth for block content.
type OpEntry struct {
	ID        string    `json:"id"`
	BlockID   string    `json:"block_id"`
	Type      string    `json:"type"`
	Position  int       `json:"position,omitempty"`
	Length    int       `json:"length,omitempty"`
	Text      string    `json:"text,omitempty"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is all serializable coordination state for one channel.
// This data is persisted to Redis and shared across gateway processes.
//
// PERSISTED TO REDIS:
// - ID: channel key ("<kind>:<documentId>")
// - Kind, DocumentID: channel identity
// - CreatedAt, UpdatedAt: timestamps
// - Version: for optimistic locking in distributed deployments
// - Participants: active roster with cursors and activity times
// - Locks: advisory block locks with expiry
// - Operations: bounded recent-edit log for diagnostics/replay
type Record struct {
	ID           string                  `json:"id"`
	Kind         string                  `json:"kind"`
	DocumentID   string                  `json:"document_id"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	Version      int64                   `json:"version"` // Monotonically increasing for optimistic locking
	Participants map[string]*Participant `json:"participants"`
	Locks        map[string]*Lock        `json:"locks"`
	Operations   []OpEntry               `json:"operations"`
	LastActivity time.Time               `json:"last_activity"`
}

// NewRecord creates an empty session record for a channel.
func NewRecord(id, kind, documentID string) *Record {
	return &Record{
		ID:           id,
		Kind:         kind,
		DocumentID:   documentID,
		Participants: make(map[string]*Participant),
		Locks:        make(map[string]*Lock),
		LastActivity: time.Now(),
	}
}

// ActiveLock returns the non-expired lock on a block, or nil.
func (r *Record) ActiveLock(blockID string, now time.Time) *Lock {
	l, ok := r.Locks[blockID]
	if !ok || l.Expired(now) {
		return nil
	}
	return l
}

// PruneExpiredLocks removes every expired lock and reports whether any
// were removed.
func (r *Record) PruneExpiredLocks(now time.Time) bool {
	changed := false
	for blockID, l := range r.Locks {
		if l.Expired(now) {
			delete(r.Locks, blockID)
			changed = true
		}
	}
	return changed
}

// ReleaseHeldBy removes every lock held by the given user and reports
// whether any were removed.
func (r *Record) ReleaseHeldBy(userID string) bool {
	changed := false
	for blockID, l := range r.Locks {
		if l.HolderID == userID {
			delete(r.Locks, blockID)
			changed = true
		}
	}
	return changed
}

// TrimOperations truncates the operation log to the given capacity,
// dropping the oldest entries first.
func TrimOperations(ops []OpEntry, capacity int) []OpEntry {
	if capacity <= 0 {
		return nil
	}
	if len(ops) > capacity {
		ops = ops[len(ops)-capacity:]
	}
	return ops
}

// AppendOperation appends an entry to the record's bounded log, trimming
// oldest entries past the capacity.
func (r *Record) AppendOperation(entry OpEntry, capacity int) {
	r.Operations = TrimOperations(append(r.Operations, entry), capacity)
}
