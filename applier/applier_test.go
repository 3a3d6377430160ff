package applier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collab "github.com/sermonsmith/collab"
	"github.com/sermonsmith/collab/docstore"
	"github.com/sermonsmith/collab/presence"
	"github.com/sermonsmith/collab/session"
)

var (
	alice = collab.Principal{UserID: "alice", DisplayName: "Alice", Role: collab.RoleEditor}
	bob   = collab.Principal{UserID: "bob", DisplayName: "Bob", Role: collab.RoleEditor}
	chD1  = collab.Channel{Kind: "sermon", DocumentID: "d1"}
)

type fixture struct {
	applier  *Applier
	presence *presence.Manager
	docs     *docstore.MemStore
	store    session.Store
	kind     collab.DocumentKind
}

func newFixture(t *testing.T, opts ...presence.Option) *fixture {
	t.Helper()

	docs := docstore.NewMemStore()
	docs.SeedSermon(&docstore.Sermon{ID: "d1", OwnerID: "alice", Title: "Grace"})
	docs.SeedCollaborator(docstore.Collaborator{
		DocumentKind: "sermon", DocumentID: "d1", UserID: "bob", Role: collab.RoleEditor,
	})
	docs.SeedBlock(&docstore.Block{ID: "b1", DocumentID: "d1", Type: "paragraph", Content: ""})

	store := session.NewMemoryStore()
	pm := presence.NewManager(store, opts...)
	kind, err := collab.KindFor(docs, "sermon")
	require.NoError(t, err)

	f := &fixture{
		applier:  New(docs, pm),
		presence: pm,
		docs:     docs,
		store:    store,
		kind:     kind,
	}

	ctx := context.Background()
	_, err = pm.Join(ctx, chD1, kind, alice, "")
	require.NoError(t, err)
	_, err = pm.Join(ctx, chD1, kind, bob, "")
	require.NoError(t, err)
	return f
}

func TestApplier_ApplyEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	content, err := f.applier.ApplyEdit(ctx, chD1, "b1",
		collab.Operation{Type: collab.OpInsert, Position: 0, Text: "Grace"}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Grace", content)

	block, err := f.docs.GetBlock(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", block.Content)

	// A version record was appended with the author.
	versions := f.docs.Versions("b1")
	require.Len(t, versions, 1)
	assert.Equal(t, "Grace", versions[0].Content)
	assert.Equal(t, "alice", versions[0].AuthorID)

	// The session log holds the operation.
	record, err := f.store.Get(ctx, chD1.Key())
	require.NoError(t, err)
	require.Len(t, record.Operations, 1)
	assert.Equal(t, "b1", record.Operations[0].BlockID)
	assert.Equal(t, "alice", record.Operations[0].AuthorID)
}

func TestApplier_ApplyEdit_BlockLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.applier.ApplyEdit(ctx, chD1, "b1",
		collab.Operation{Type: collab.OpInsert, Position: 0, Text: "Grace"}, alice)
	require.NoError(t, err)

	// Alice's edit left her holding the lock; Bob is refused.
	_, err = f.applier.ApplyEdit(ctx, chD1, "b1",
		collab.Operation{Type: collab.OpInsert, Position: 0, Text: "x"}, bob)
	var locked *collab.BlockLockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, "alice", locked.HeldBy)

	// Content is untouched by the refused edit.
	block, err := f.docs.GetBlock(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", block.Content)
}

func TestApplier_ApplyEdit_AfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, presence.WithLockTTL(20*time.Millisecond))

	_, err := f.applier.ApplyEdit(ctx, chD1, "b1",
		collab.Operation{Type: collab.OpInsert, Position: 0, Text: "Grace"}, alice)
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	// With no renewal the lock expired; Bob's edit now succeeds.
	content, err := f.applier.ApplyEdit(ctx, chD1, "b1",
		collab.Operation{Type: collab.OpInsert, Position: 5, Text: " abounds"}, bob)
	require.NoError(t, err)
	assert.Equal(t, "Grace abounds", content)
}

func TestApplier_ApplyEdit_ValidationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.applier.ApplyEdit(ctx, chD1, "b1", collab.Operation{Type: "merge"}, alice)
	assert.ErrorIs(t, err, collab.ErrValidation)

	// A rejected operation never acquires the lock.
	assert.NoError(t, f.presence.AcquireLock(ctx, chD1, "b1", "bob"))
}

func TestApplier_ApplyEdit_MissingBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.applier.ApplyEdit(ctx, chD1, "ghost",
		collab.Operation{Type: collab.OpReplace, Text: "x"}, alice)
	assert.ErrorIs(t, err, collab.ErrNotFound)

	// The lock acquired for the failed attempt was released.
	assert.NoError(t, f.presence.AcquireLock(ctx, chD1, "ghost", "bob"))
}

func TestApplier_ApplyEdit_PersistFailureReleasesLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.docs.FailNextUpdate(errors.New("connection reset"))

	_, err := f.applier.ApplyEdit(ctx, chD1, "b1",
		collab.Operation{Type: collab.OpInsert, Position: 0, Text: "Grace"}, alice)
	assert.ErrorIs(t, err, collab.ErrTransientStore)

	// The lock must not be stranded until expiry.
	assert.NoError(t, f.presence.AcquireLock(ctx, chD1, "b1", "bob"))
}

func TestApplier_CreateBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	block, err := f.applier.CreateBlock(ctx, chD1, CreateBlockInput{
		Type: "quote", Content: "Selah", Order: 2,
	}, alice)
	require.NoError(t, err)
	require.NotEmpty(t, block.ID)
	assert.Equal(t, "d1", block.DocumentID)

	stored, err := f.docs.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, "Selah", stored.Content)
}

func TestApplier_CreateBlock_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.applier.CreateBlock(ctx, chD1, CreateBlockInput{Content: "x"}, alice)
	assert.ErrorIs(t, err, collab.ErrValidation)

	_, err = f.applier.CreateBlock(ctx, chD1, CreateBlockInput{Type: "quote", Order: -1}, alice)
	assert.ErrorIs(t, err, collab.ErrValidation)
}

func TestApplier_DeleteBlock_Permissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A viewer who is neither owner nor collaborator may not delete.
	carol := collab.Principal{UserID: "carol", Role: collab.RoleViewer}
	err := f.applier.DeleteBlock(ctx, chD1, f.kind, "b1", carol)
	assert.ErrorIs(t, err, collab.ErrPermissionDenied)

	// An editor collaborator may.
	require.NoError(t, f.applier.DeleteBlock(ctx, chD1, f.kind, "b1", bob))
	_, err = f.docs.GetBlock(ctx, "b1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestApplier_DeleteBlock_AdminOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	admin := collab.Principal{UserID: "root", Role: collab.RoleAdmin}
	assert.NoError(t, f.applier.DeleteBlock(ctx, chD1, f.kind, "b1", admin))
}

func TestApplier_AddComment_NotifiesCollaborators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Carol collaborates but is not connected.
	f.docs.SeedCollaborator(docstore.Collaborator{
		DocumentKind: "sermon", DocumentID: "d1", UserID: "carol", Role: collab.RoleViewer,
	})

	comment, err := f.applier.AddComment(ctx, chD1, f.kind, "b1", "Needs a stronger opening", alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", comment.AuthorID)
	assert.Equal(t, "b1", comment.BlockID)

	notifications := f.docs.Notifications()
	recipients := make([]string, 0, len(notifications))
	for _, n := range notifications {
		assert.Equal(t, "alice", n.ActorID)
		assert.Equal(t, "d1", n.DocumentID)
		recipients = append(recipients, n.UserID)
	}
	// Bob and Carol are notified; the author never notifies herself.
	assert.ElementsMatch(t, []string{"bob", "carol"}, recipients)
}

func TestApplier_AddComment_NotifiesOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A collaborator's comment notifies the document owner.
	_, err := f.applier.AddComment(ctx, chD1, f.kind, "b1", "Could we cite the passage?", bob)
	require.NoError(t, err)

	recipients := make([]string, 0)
	for _, n := range f.docs.Notifications() {
		assert.Equal(t, "bob", n.ActorID)
		recipients = append(recipients, n.UserID)
	}
	assert.ElementsMatch(t, []string{"alice"}, recipients)
}

func TestApplier_AddComment_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.applier.AddComment(ctx, chD1, f.kind, "b1", "", alice)
	assert.ErrorIs(t, err, collab.ErrValidation)
}

func TestApplier_ResolveComment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	comment, err := f.applier.AddComment(ctx, chD1, f.kind, "b1", "Check this reference", alice)
	require.NoError(t, err)

	resolved, err := f.applier.ResolveComment(ctx, chD1, comment.ID, bob)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "bob", resolved.ResolvedBy)

	_, err = f.applier.ResolveComment(ctx, chD1, "ghost", bob)
	assert.ErrorIs(t, err, collab.ErrNotFound)
}
