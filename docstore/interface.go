package docstore

import (
	"context"
	"errors"
	"time"
)

// Errors returned by document store implementations.
var (
	ErrNotFound = errors.New("record not found")
)

// Store provides access to document persistence for the collaboration engine.
// It is the authoritative source for block content; the engine never invents
// blocks outside this contract.
type Store interface {
	// GetBlock retrieves a block by ID.
	GetBlock(ctx context.Context, blockID string) (*Block, error)

	// CreateBlock persists a new block and returns it with its assigned ID.
	CreateBlock(ctx context.Context, block *Block) (*Block, error)

	// UpdateBlock replaces a block's content and returns the updated block.
	UpdateBlock(ctx context.Context, blockID, content string) (*Block, error)

	// DeleteBlock removes a block by ID.
	DeleteBlock(ctx context.Context, blockID string) error

	// AppendVersion appends an immutable version record for a block.
	AppendVersion(ctx context.Context, version *BlockVersion) error

	// CreateComment persists a new comment and returns it with its ID.
	CreateComment(ctx context.Context, comment *Comment) (*Comment, error)

	// ResolveComment marks a comment resolved and returns the updated comment.
	ResolveComment(ctx context.Context, commentID, resolvedBy string) (*Comment, error)

	// CreateNotification persists a notification record for a user.
	CreateNotification(ctx context.Context, notification *Notification) error

	// GetSermon retrieves a sermon by ID.
	GetSermon(ctx context.Context, sermonID string) (*Sermon, error)

	// GetSeries retrieves a series by ID.
	GetSeries(ctx context.Context, seriesID string) (*Series, error)

	// ListCollaborators retrieves all collaborators on a document.
	ListCollaborators(ctx context.Context, documentKind, documentID string) ([]Collaborator, error)

	// Close closes the store and releases resources.
	Close() error
}

// Block is one ordered, optionally nested unit of document content.
type Block struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BlockVersion is one append-only history entry for a block.
type BlockVersion struct {
	ID        string    `json:"id"`
	BlockID   string    `json:"block_id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment is a remark attached to a document or one of its blocks.
type Comment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	BlockID    string    `json:"block_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	Resolved   bool      `json:"resolved"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Notification is a pending alert for a collaborator about activity on a
// document, persisted for delivery outside the live channel.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	DocumentID string    `json:"document_id"`
	ActorID    string    `json:"actor_id"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Collaborator grants a user a role on a document.
type Collaborator struct {
	DocumentKind string    `json:"document_kind"`
	DocumentID   string    `json:"document_id"`
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sermon is the primary document type: an ordered tree of blocks.
type Sermon struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Series groups sermons under a shared theme.
type Series struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
