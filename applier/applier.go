package applier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	collab "github.com/sermonsmith/collab"
	"github.com/sermonsmith/collab/docstore"
	"github.com/sermonsmith/collab/presence"
	"github.com/sermonsmith/collab/session"
)

// Applier validates edit operations against current block content, computes
// new content, and persists it through the document store. Block content is
// mutated by exactly one ApplyEdit invocation at a time logically, enforced
// by the advisory lock, not by the store.
type Applier struct {
	docs     docstore.Store
	presence *presence.Manager
}

// New creates an operation applier.
func New(docs docstore.Store, pm *presence.Manager) *Applier {
	return &Applier{
		docs:     docs,
		presence: pm,
	}
}

// ApplyEdit applies one edit operation to a block. The caller must hold, or
// be able to silently acquire, the advisory lock on the block; an edit
// against a block locked by a different participant fails with
// BlockLockedError. On persistence failure the lock acquired for this
// attempt is released and the error surfaces to the caller only.
func (a *Applier) ApplyEdit(ctx context.Context, ch collab.Channel, blockID string, op collab.Operation, principal collab.Principal) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	// Acquire-or-refresh; a repeat edit by the holder extends the TTL.
	if err := a.presence.AcquireLock(ctx, ch, blockID, principal.UserID); err != nil {
		return "", err
	}

	block, err := a.docs.GetBlock(ctx, blockID)
	if err != nil {
		a.releaseAfterFailure(ctx, ch, blockID, principal.UserID)
		if errors.Is(err, docstore.ErrNotFound) {
			return "", fmt.Errorf("block %s: %w", blockID, collab.ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}

	newContent, err := op.Apply(block.Content)
	if err != nil {
		a.releaseAfterFailure(ctx, ch, blockID, principal.UserID)
		return "", err
	}

	if _, err := a.docs.UpdateBlock(ctx, blockID, newContent); err != nil {
		a.releaseAfterFailure(ctx, ch, blockID, principal.UserID)
		return "", fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}

	if err := a.docs.AppendVersion(ctx, &docstore.BlockVersion{
		BlockID:  blockID,
		Content:  newContent,
		AuthorID: principal.UserID,
	}); err != nil {
		// Content is already persisted; a missing version row is logged,
		// not surfaced.
		glog.Warningf("applier: appending version for block %s: %v", blockID, err)
	}

	entry := session.OpEntry{
		ID:        uuid.NewString(),
		BlockID:   blockID,
		Type:      op.Type,
		Position:  op.Position,
		Length:    op.Length,
		Text:      op.Text,
		AuthorID:  principal.UserID,
		Timestamp: time.Now(),
	}
	if err := a.presence.RecordOperation(ctx, ch, entry); err != nil {
		glog.Warningf("applier: recording operation on %s: %v", ch.Key(), err)
	}

	return newContent, nil
}

// releaseAfterFailure frees a lock optimistically acquired for an attempt
// that did not persist, so the block is not stranded until expiry.
func (a *Applier) releaseAfterFailure(ctx context.Context, ch collab.Channel, blockID, userID string) {
	if err := a.presence.ReleaseLock(ctx, ch, blockID, userID); err != nil {
		glog.Warningf("applier: releasing lock on %s/%s: %v", ch.Key(), blockID, err)
	}
}

// CreateBlockInput carries the validated fields for a new block.
type CreateBlockInput struct {
	ParentID string
	Type     string
	Content  string
	Order    int
}

// CreateBlock persists a new block through the document store.
func (a *Applier) CreateBlock(ctx context.Context, ch collab.Channel, input CreateBlockInput, principal collab.Principal) (*docstore.Block, error) {
	if input.Type == "" {
		return nil, fmt.Errorf("%w: block type is required", collab.ErrValidation)
	}
	if input.Order < 0 {
		return nil, fmt.Errorf("%w: block order %d", collab.ErrValidation, input.Order)
	}

	block, err := a.docs.CreateBlock(ctx, &docstore.Block{
		DocumentID: ch.DocumentID,
		ParentID:   input.ParentID,
		Type:       input.Type,
		Content:    input.Content,
		Order:      input.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}
	return block, nil
}

// DeleteBlock removes a block. Only the document owner, a collaborator with
// edit rights, or an administrator may delete.
func (a *Applier) DeleteBlock(ctx context.Context, ch collab.Channel, kind collab.DocumentKind, blockID string, principal collab.Principal) error {
	allowed, err := kind.CanDelete(ctx, principal, ch.DocumentID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("user %s deleting block %s: %w", principal.UserID, blockID, collab.ErrPermissionDenied)
	}

	if err := a.docs.DeleteBlock(ctx, blockID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("block %s: %w", blockID, collab.ErrNotFound)
		}
		return fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}
	return nil
}

// AddComment persists a comment, then creates notification records for the
// document's owner and collaborators other than the author. Connected peers
// also see the broadcast; the notification rows cover everyone else.
func (a *Applier) AddComment(ctx context.Context, ch collab.Channel, kind collab.DocumentKind, blockID, content string, principal collab.Principal) (*docstore.Comment, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", collab.ErrValidation)
	}

	comment, err := a.docs.CreateComment(ctx, &docstore.Comment{
		DocumentID: ch.DocumentID,
		BlockID:    blockID,
		AuthorID:   principal.UserID,
		Content:    content,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}

	a.notifyCollaborators(ctx, ch, kind, principal, fmt.Sprintf("%s commented on %s", principal.DisplayName, ch.DocumentID))

	return comment, nil
}

// ResolveComment marks a comment resolved.
func (a *Applier) ResolveComment(ctx context.Context, ch collab.Channel, commentID string, principal collab.Principal) (*docstore.Comment, error) {
	comment, err := a.docs.ResolveComment(ctx, commentID, principal.UserID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("comment %s: %w", commentID, collab.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", collab.ErrTransientStore, err)
	}
	return comment, nil
}

// notifyCollaborators writes one notification row for the document owner and
// each collaborator except the actor. Failures are logged; notification
// delivery is best-effort and never blocks the comment itself.
func (a *Applier) notifyCollaborators(ctx context.Context, ch collab.Channel, kind collab.DocumentKind, actor collab.Principal, message string) {
	recipients := make(map[string]struct{})

	owner, err := kind.Owner(ctx, ch.DocumentID)
	if err != nil {
		glog.Warningf("applier: resolving owner of %s: %v", ch.Key(), err)
	} else if owner != actor.UserID {
		recipients[owner] = struct{}{}
	}

	collaborators, err := a.docs.ListCollaborators(ctx, ch.Kind, ch.DocumentID)
	if err != nil {
		glog.Warningf("applier: listing collaborators for %s: %v", ch.Key(), err)
	}
	for _, c := range collaborators {
		if c.UserID != actor.UserID {
			recipients[c.UserID] = struct{}{}
		}
	}

	for userID := range recipients {
		err := a.docs.CreateNotification(ctx, &docstore.Notification{
			UserID:     userID,
			Kind:       "comment",
			DocumentID: ch.DocumentID,
			ActorID:    actor.UserID,
			Message:    message,
		})
		if err != nil {
			glog.Warningf("applier: creating notification for %s: %v", userID, err)
		}
	}
}
