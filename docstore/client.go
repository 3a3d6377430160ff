package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes
}

// Client implements the Store interface using Supabase
type Client struct {
	client   *supabase.Client
	cache    *cache
	cacheTTL time.Duration
}

// cache provides thread-safe caching for document ownership lookups, which
// run on every access check.
type cache struct {
	mu   sync.RWMutex
	byID map[string]*cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// New creates a new Supabase-backed document store client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client:   client,
		cacheTTL: cfg.CacheTTL,
		cache: &cache{
			byID: make(map[string]*cacheEntry),
		},
	}, nil
}

// GetBlock retrieves a block by ID
func (c *Client) GetBlock(ctx context.Context, blockID string) (*Block, error) {
	var blocks []Block
	_, err := c.client.From("blocks").
		Select("*", "", false).
		Eq("id", blockID).
		ExecuteTo(&blocks)

	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}

	return &blocks[0], nil
}

// CreateBlock persists a new block and returns it with its assigned ID
func (c *Client) CreateBlock(ctx context.Context, block *Block) (*Block, error) {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	now := time.Now()
	block.CreatedAt = now
	block.UpdatedAt = now

	var created []Block
	_, err := c.client.From("blocks").
		Insert(block, false, "", "representation", "").
		ExecuteTo(&created)

	if err != nil {
		return nil, fmt.Errorf("failed to create block: %w", err)
	}
	if len(created) == 0 {
		return block, nil
	}

	return &created[0], nil
}

// UpdateBlock replaces a block's content and returns the updated block
func (c *Client) UpdateBlock(ctx context.Context, blockID, content string) (*Block, error) {
	patch := map[string]any{
		"content":    content,
		"updated_at": time.Now(),
	}

	var updated []Block
	_, err := c.client.From("blocks").
		Update(patch, "representation", "").
		Eq("id", blockID).
		ExecuteTo(&updated)

	if err != nil {
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}

	return &updated[0], nil
}

// DeleteBlock removes a block by ID
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	var deleted []Block
	_, err := c.client.From("blocks").
		Delete("representation", "").
		Eq("id", blockID).
		ExecuteTo(&deleted)

	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	if len(deleted) == 0 {
		return fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}

	return nil
}

// AppendVersion appends an immutable version record for a block
func (c *Client) AppendVersion(ctx context.Context, version *BlockVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	version.CreatedAt = time.Now()

	var created []BlockVersion
	_, err := c.client.From("block_versions").
		Insert(version, false, "", "representation", "").
		ExecuteTo(&created)

	if err != nil {
		return fmt.Errorf("failed to append block version: %w", err)
	}

	return nil
}

// CreateComment persists a new comment and returns it with its ID
func (c *Client) CreateComment(ctx context.Context, comment *Comment) (*Comment, error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now()
	comment.CreatedAt = now
	comment.UpdatedAt = now

	var created []Comment
	_, err := c.client.From("comments").
		Insert(comment, false, "", "representation", "").
		ExecuteTo(&created)

	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	if len(created) == 0 {
		return comment, nil
	}

	return &created[0], nil
}

// ResolveComment marks a comment resolved and returns the updated comment
func (c *Client) ResolveComment(ctx context.Context, commentID, resolvedBy string) (*Comment, error) {
	patch := map[string]any{
		"resolved":    true,
		"resolved_by": resolvedBy,
		"updated_at":  time.Now(),
	}

	var updated []Comment
	_, err := c.client.From("comments").
		Update(patch, "representation", "").
		Eq("id", commentID).
		ExecuteTo(&updated)

	if err != nil {
		return nil, fmt.Errorf("failed to resolve comment: %w", err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}

	return &updated[0], nil
}

// CreateNotification persists a notification record for a user
func (c *Client) CreateNotification(ctx context.Context, notification *Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = time.Now()

	var created []Notification
	_, err := c.client.From("notifications").
		Insert(notification, false, "", "representation", "").
		ExecuteTo(&created)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// GetSermon retrieves a sermon by ID
func (c *Client) GetSermon(ctx context.Context, sermonID string) (*Sermon, error) {
	// Check cache first
	if cached, ok := c.getFromCache("sermon:" + sermonID).(*Sermon); ok && cached != nil {
		return cached, nil
	}

	var sermons []Sermon
	_, err := c.client.From("sermons").
		Select("*", "", false).
		Eq("id", sermonID).
		ExecuteTo(&sermons)

	if err != nil {
		return nil, fmt.Errorf("failed to get sermon: %w", err)
	}
	if len(sermons) == 0 {
		return nil, fmt.Errorf("sermon %s: %w", sermonID, ErrNotFound)
	}

	sermon := &sermons[0]

	// Cache by ID
	c.addToCache("sermon:"+sermonID, sermon)

	return sermon, nil
}

// GetSeries retrieves a series by ID
func (c *Client) GetSeries(ctx context.Context, seriesID string) (*Series, error) {
	// Check cache first
	if cached, ok := c.getFromCache("series:" + seriesID).(*Series); ok && cached != nil {
		return cached, nil
	}

	var series []Series
	_, err := c.client.From("series").
		Select("*", "", false).
		Eq("id", seriesID).
		ExecuteTo(&series)

	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}

	s := &series[0]

	// Cache by ID
	c.addToCache("series:"+seriesID, s)

	return s, nil
}

// ListCollaborators retrieves all collaborators on a document
func (c *Client) ListCollaborators(ctx context.Context, documentKind, documentID string) ([]Collaborator, error) {
	var collaborators []Collaborator
	_, err := c.client.From("collaborators").
		Select("*", "", false).
		Eq("document_kind", documentKind).
		Eq("document_id", documentID).
		ExecuteTo(&collaborators)

	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}

	return collaborators, nil
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

// getFromCache retrieves a value from cache by key
func (c *Client) getFromCache(key string) any {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()

	if e, ok := c.cache.byID[key]; ok {
		if time.Now().Before(e.expiresAt) {
			return e.value
		}
	}
	return nil
}

// addToCache adds a value to cache
func (c *Client) addToCache(key string, value any) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.byID[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
}

// Compile-time check that Client implements Store
var _ Store = (*Client)(nil)
