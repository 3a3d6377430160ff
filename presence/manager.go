package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	collab "github.com/sermonsmith/collab"
	"github.com/sermonsmith/collab/session"
)

const (
	defaultLockTTL       = 30 * time.Second
	defaultJoinTimeout   = 10 * time.Second
	defaultOpLogCapacity = 100

	// Bounded retries for version-conflict races before giving up.
	maxUpdateRetries = 5
)

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithLockTTL sets the advisory lock lifetime.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithJoinTimeout bounds how long a join may take before failing explicitly.
func WithJoinTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.joinTimeout = timeout
	}
}

// WithOpLogCapacity sets the bounded operation log capacity.
func WithOpLogCapacity(capacity int) Option {
	return func(m *Manager) {
		m.opLogCap = capacity
	}
}

// Manager owns the lifecycle of session records: participant roster, cursor
// positions, block locks, and the bounded operation log. Every mutation is a
// version-checked read-modify-write against the shared session store, so
// concurrent writers from other processes never silently overwrite each
// other; the loser of a race retries against the fresh record.
type Manager struct {
	store       session.Store
	lockTTL     time.Duration
	joinTimeout time.Duration
	opLogCap    int
}

// NewManager creates a presence and lock manager over the given store.
func NewManager(store session.Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		lockTTL:     defaultLockTTL,
		joinTimeout: defaultJoinTimeout,
		opLogCap:    defaultOpLogCapacity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LockTTL returns the configured advisory lock lifetime.
func (m *Manager) LockTTL() time.Duration {
	return m.lockTTL
}

// errStopMutate aborts a mutate loop without writing. The wrapped cause is
// returned to the caller.
type errStopMutate struct{ cause error }

func (e errStopMutate) Error() string { return e.cause.Error() }

// mutate runs one version-checked read-modify-write cycle, retrying on
// version conflicts. When createIfAbsent is false and the record does not
// exist, it returns collab.ErrNotFound. When fn leaves the record with no
// participants the record is deleted instead of written back.
func (m *Manager) mutate(ctx context.Context, ch collab.Channel, createIfAbsent bool, fn func(*session.Record) error) (*session.Record, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		record, err := m.store.Get(ctx, ch.Key())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
		}

		created := false
		if record == nil {
			if !createIfAbsent {
				return nil, fmt.Errorf("session %s: %w", ch.Key(), collab.ErrNotFound)
			}
			record = session.NewRecord(ch.Key(), ch.Kind, ch.DocumentID)
			created = true
		}

		if err := fn(record); err != nil {
			var stop errStopMutate
			if errors.As(err, &stop) {
				return record, stop.cause
			}
			return nil, err
		}
		record.LastActivity = time.Now()

		switch {
		case len(record.Participants) == 0 && !created:
			// A session with zero participants is deleted, not retained.
			if err := m.store.Delete(ctx, record.ID); err != nil {
				return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
			}
			return record, nil
		case created:
			if len(record.Participants) == 0 {
				return record, nil
			}
			err = m.store.Create(ctx, record)
		default:
			err = m.store.Update(ctx, record)
		}

		if err == nil {
			return record, nil
		}
		if errors.Is(err, session.ErrVersionConflict) || errors.Is(err, session.ErrNotFound) ||
			errors.Is(err, session.ErrAlreadyExists) {
			// Lost the race; re-read and retry.
			continue
		}
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}
	return nil, fmt.Errorf("%w: too many concurrent updates on %s", collab.ErrTransientStore, ch.Key())
}

// Join verifies access, upserts the participant into the session record
// (creating the record if absent), and returns the current snapshot. The
// call fails explicitly when it cannot complete within the join timeout.
func (m *Manager) Join(ctx context.Context, ch collab.Channel, kind collab.DocumentKind, principal collab.Principal, displayName string) (*collab.SessionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, m.joinTimeout)
	defer cancel()

	ok, err := kind.CheckAccess(ctx, principal.UserID, ch.DocumentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s on %s: %w", principal.UserID, ch.Key(), collab.ErrPermissionDenied)
	}

	if displayName == "" {
		displayName = principal.DisplayName
	}

	now := time.Now()
	record, err := m.mutate(ctx, ch, true, func(r *session.Record) error {
		p, exists := r.Participants[principal.UserID]
		if !exists {
			p = &session.Participant{
				UserID:   principal.UserID,
				JoinedAt: now,
			}
			r.Participants[principal.UserID] = p
		}
		p.DisplayName = displayName
		p.LastActive = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.store.AddUserChannel(ctx, principal.UserID, ch.Key()); err != nil {
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}

	return snapshotOf(record), nil
}

// Leave removes the participant, releases any locks they held, deletes the
// session when it becomes empty, and prunes the reverse index.
func (m *Manager) Leave(ctx context.Context, ch collab.Channel, userID string) error {
	_, err := m.mutate(ctx, ch, false, func(r *session.Record) error {
		delete(r.Participants, userID)
		r.ReleaseHeldBy(userID)
		return nil
	})
	if err != nil && !errors.Is(err, collab.ErrNotFound) {
		return err
	}

	if err := m.store.RemoveUserChannel(ctx, userID, ch.Key()); err != nil {
		return fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}
	return nil
}

// UpdateCursor overwrites the participant's cursor and activity timestamp.
func (m *Manager) UpdateCursor(ctx context.Context, ch collab.Channel, userID string, cursor collab.CursorInfo) error {
	_, err := m.mutate(ctx, ch, false, func(r *session.Record) error {
		p, ok := r.Participants[userID]
		if !ok {
			return errStopMutate{cause: fmt.Errorf("participant %s: %w", userID, collab.ErrNotFound)}
		}
		p.Cursor = &session.Cursor{BlockID: cursor.BlockID, Offset: cursor.Offset}
		p.LastActive = time.Now()
		return nil
	})
	return err
}

// AcquireLock installs or refreshes the advisory lock on a block in a single
// read-modify-write. A non-expired lock held by a different participant
// yields a BlockLockedError; a self-held lock is refreshed.
func (m *Manager) AcquireLock(ctx context.Context, ch collab.Channel, blockID, userID string) error {
	now := time.Now()
	_, err := m.mutate(ctx, ch, false, func(r *session.Record) error {
		if l := r.ActiveLock(blockID, now); l != nil && l.HolderID != userID {
			return errStopMutate{cause: &collab.BlockLockedError{BlockID: blockID, HeldBy: l.HolderID}}
		}
		r.Locks[blockID] = &session.Lock{
			HolderID:  userID,
			ExpiresAt: now.Add(m.lockTTL),
		}
		if p, ok := r.Participants[userID]; ok {
			p.LastActive = now
		}
		return nil
	})
	return err
}

// ReleaseLock removes the lock only when currently held by userID.
func (m *Manager) ReleaseLock(ctx context.Context, ch collab.Channel, blockID, userID string) error {
	_, err := m.mutate(ctx, ch, false, func(r *session.Record) error {
		if l, ok := r.Locks[blockID]; ok && l.HolderID == userID {
			delete(r.Locks, blockID)
		}
		return nil
	})
	if errors.Is(err, collab.ErrNotFound) {
		return nil
	}
	return err
}

// RecordOperation appends an entry to the session's bounded operation log.
func (m *Manager) RecordOperation(ctx context.Context, ch collab.Channel, entry session.OpEntry) error {
	_, err := m.mutate(ctx, ch, false, func(r *session.Record) error {
		r.AppendOperation(entry, m.opLogCap)
		return nil
	})
	return err
}

// Disconnect behaves as Leave for every channel the user had joined, using
// the reverse index. It returns the affected channels so the gateway can
// announce the departure on each.
func (m *Manager) Disconnect(ctx context.Context, userID string) ([]collab.Channel, error) {
	keys, err := m.store.UserChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}

	var channels []collab.Channel
	for _, key := range keys {
		ch, ok := collab.ParseChannelKey(key)
		if !ok {
			continue
		}
		if err := m.Leave(ctx, ch, userID); err != nil {
			return channels, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// Snapshot returns the current roster view of a session.
func (m *Manager) Snapshot(ctx context.Context, ch collab.Channel) (*collab.SessionSnapshot, error) {
	record, err := m.store.Get(ctx, ch.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}
	if record == nil {
		return nil, fmt.Errorf("session %s: %w", ch.Key(), collab.ErrNotFound)
	}
	return snapshotOf(record), nil
}

// snapshotOf builds the wire snapshot: participants and timestamps only,
// never locks or the operation log.
func snapshotOf(r *session.Record) *collab.SessionSnapshot {
	participants := make([]collab.ParticipantInfo, 0, len(r.Participants))
	for _, p := range r.Participants {
		info := collab.ParticipantInfo{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			LastActive:  p.LastActive,
		}
		if p.Cursor != nil {
			info.Cursor = &collab.CursorInfo{BlockID: p.Cursor.BlockID, Offset: p.Cursor.Offset}
		}
		participants = append(participants, info)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].UserID < participants[j].UserID
	})

	return &collab.SessionSnapshot{
		SessionID:    r.ID,
		Participants: participants,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	}
}
