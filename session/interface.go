package session

import "context"

// Store defines the interface for shared session state. It is the only
// cross-process shared state in the engine; every mutation goes through
// the version-checked Update.
type Store interface {
	// Create creates a new session record with Version set to 1.
	// Returns ErrAlreadyExists if a record with the same ID is present;
	// the existing record is never overwritten.
	Create(ctx context.Context, record *Record) error

	// Get retrieves a session record by ID.
	// Returns nil if the record is not found (not an error).
	Get(ctx context.Context, id string) (*Record, error)

	// Update updates an existing record with optimistic locking.
	// Verifies the Version matches the stored version, increments Version,
	// updates UpdatedAt, and persists the record.
	// Returns ErrVersionConflict if the version does not match.
	// Returns ErrNotFound if the record does not exist.
	Update(ctx context.Context, record *Record) error

	// Delete deletes a session record by ID.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all live session records. Used by the
	// cleanup sweeper; order is not guaranteed.
	List(ctx context.Context) ([]string, error)

	// AddUserChannel records that a user has joined a channel, for
	// reverse lookup on ungraceful disconnect.
	AddUserChannel(ctx context.Context, userID, channelID string) error

	// RemoveUserChannel removes one channel from a user's joined set.
	RemoveUserChannel(ctx context.Context, userID, channelID string) error

	// UserChannels returns the channel IDs a user has joined.
	UserChannels(ctx context.Context, userID string) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}
