package collab

import (
	"context"
	"errors"
	"fmt"

	"github.com/sermonsmith/collab/docstore"
)

// DocumentKind is the capability interface for one document type. An
// implementation is selected once at channel-join time; handlers never
// branch on the kind name again.
type DocumentKind interface {
	// Name returns the wire name of the kind ("sermon", "series").
	Name() string

	// Owner returns the user ID that owns the document.
	Owner(ctx context.Context, documentID string) (string, error)

	// CheckAccess reports whether the user may view and edit the document.
	CheckAccess(ctx context.Context, userID, documentID string) (bool, error)

	// CanDelete reports whether the principal may delete blocks of the
	// document: the owner, a collaborator with edit rights, or an admin.
	CanDelete(ctx context.Context, principal Principal, documentID string) (bool, error)
}

// KindFor resolves a wire kind name to its capability implementation backed
// by the given document store.
func KindFor(store docstore.Store, name string) (DocumentKind, error) {
	switch name {
	case "sermon":
		return &sermonKind{store: store}, nil
	case "series":
		return &seriesKind{store: store}, nil
	default:
		return nil, fmt.Errorf("%w: unknown document kind %q", ErrValidation, name)
	}
}

type sermonKind struct {
	store docstore.Store
}

func (k *sermonKind) Name() string { return "sermon" }

func (k *sermonKind) Owner(ctx context.Context, documentID string) (string, error) {
	sermon, err := k.store.GetSermon(ctx, documentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", fmt.Errorf("sermon %s: %w", documentID, ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	return sermon.OwnerID, nil
}

func (k *sermonKind) CheckAccess(ctx context.Context, userID, documentID string) (bool, error) {
	owner, err := k.Owner(ctx, documentID)
	if err != nil {
		return false, err
	}
	if owner == userID {
		return true, nil
	}
	return hasCollaborator(ctx, k.store, k.Name(), documentID, userID, false)
}

func (k *sermonKind) CanDelete(ctx context.Context, principal Principal, documentID string) (bool, error) {
	if principal.Role == RoleAdmin {
		return true, nil
	}
	owner, err := k.Owner(ctx, documentID)
	if err != nil {
		return false, err
	}
	if owner == principal.UserID {
		return true, nil
	}
	return hasCollaborator(ctx, k.store, k.Name(), documentID, principal.UserID, true)
}

type seriesKind struct {
	store docstore.Store
}

func (k *seriesKind) Name() string { return "series" }

func (k *seriesKind) Owner(ctx context.Context, documentID string) (string, error) {
	series, err := k.store.GetSeries(ctx, documentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", fmt.Errorf("series %s: %w", documentID, ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	return series.OwnerID, nil
}

func (k *seriesKind) CheckAccess(ctx context.Context, userID, documentID string) (bool, error) {
	owner, err := k.Owner(ctx, documentID)
	if err != nil {
		return false, err
	}
	if owner == userID {
		return true, nil
	}
	return hasCollaborator(ctx, k.store, k.Name(), documentID, userID, false)
}

func (k *seriesKind) CanDelete(ctx context.Context, principal Principal, documentID string) (bool, error) {
	if principal.Role == RoleAdmin {
		return true, nil
	}
	owner, err := k.Owner(ctx, documentID)
	if err != nil {
		return false, err
	}
	if owner == principal.UserID {
		return true, nil
	}
	return hasCollaborator(ctx, k.store, k.Name(), documentID, principal.UserID, true)
}

// hasCollaborator checks the collaborator table; when editOnly is set, only
// the editor role qualifies.
func hasCollaborator(ctx context.Context, store docstore.Store, kind, documentID, userID string, editOnly bool) (bool, error) {
	collaborators, err := store.ListCollaborators(ctx, kind, documentID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	for _, c := range collaborators {
		if c.UserID != userID {
			continue
		}
		if !editOnly || c.Role == RoleEditor || c.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}
