package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := NewRecord("sermon:d1", "sermon", "d1")
	record.Participants["u1"] = &Participant{UserID: "u1", DisplayName: "Ada"}
	require.NoError(t, store.Create(ctx, record))
	assert.Equal(t, int64(1), record.Version)

	got, err := store.Get(ctx, "sermon:d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.Participants["u1"].DisplayName)

	// Mutating the returned copy must not leak into the store.
	got.Participants["u2"] = &Participant{UserID: "u2"}
	again, err := store.Get(ctx, "sermon:d1")
	require.NoError(t, err)
	assert.Len(t, again.Participants, 1)
}

func TestMemoryStore_GetMissingIsNil(t *testing.T) {
	store := NewMemoryStore()
	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := NewRecord("sermon:d1", "sermon", "d1")
	record.Participants["u1"] = &Participant{UserID: "u1"}
	require.NoError(t, store.Create(ctx, record))

	first, err := store.Get(ctx, "sermon:d1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "sermon:d1")
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	err = store.Update(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(context.Background(), NewRecord("sermon:d1", "sermon", "d1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, NewRecord("sermon:d1", "sermon", "d1")))
	require.NoError(t, store.Create(ctx, NewRecord("series:s1", "series", "s1")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sermon:d1", "series:s1"}, ids)

	require.NoError(t, store.Delete(ctx, "sermon:d1"))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"series:s1"}, ids)
}

func TestMemoryStore_UserChannels(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AddUserChannel(ctx, "u1", "sermon:d1"))
	require.NoError(t, store.AddUserChannel(ctx, "u1", "sermon:d2"))
	require.NoError(t, store.AddUserChannel(ctx, "u1", "sermon:d2")) // idempotent

	channels, err := store.UserChannels(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sermon:d1", "sermon:d2"}, channels)

	require.NoError(t, store.RemoveUserChannel(ctx, "u1", "sermon:d1"))
	channels, err = store.UserChannels(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sermon:d2"}, channels)
}

func TestNewStore_Factory(t *testing.T) {
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	require.NotNil(t, store)

	_, err = NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore(StoreType("etcd"))
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestLock_Expired(t *testing.T) {
	now := time.Now()
	l := &Lock{HolderID: "u1", ExpiresAt: now.Add(30 * time.Second)}
	assert.False(t, l.Expired(now))
	assert.True(t, l.Expired(now.Add(30*time.Second)))
	assert.True(t, l.Expired(now.Add(time.Minute)))
}

func TestRecord_ActiveLock(t *testing.T) {
	now := time.Now()
	r := NewRecord("sermon:d1", "sermon", "d1")
	r.Locks["b1"] = &Lock{HolderID: "u1", ExpiresAt: now.Add(time.Second)}
	r.Locks["b2"] = &Lock{HolderID: "u2", ExpiresAt: now.Add(-time.Second)}

	require.NotNil(t, r.ActiveLock("b1", now))
	assert.Nil(t, r.ActiveLock("b2", now))
	assert.Nil(t, r.ActiveLock("b3", now))
}

func TestRecord_PruneExpiredLocks(t *testing.T) {
	now := time.Now()
	r := NewRecord("sermon:d1", "sermon", "d1")
	r.Locks["b1"] = &Lock{HolderID: "u1", ExpiresAt: now.Add(time.Minute)}
	r.Locks["b2"] = &Lock{HolderID: "u2", ExpiresAt: now.Add(-time.Minute)}

	assert.True(t, r.PruneExpiredLocks(now))
	assert.Len(t, r.Locks, 1)
	assert.False(t, r.PruneExpiredLocks(now))
}

func TestRecord_ReleaseHeldBy(t *testing.T) {
	r := NewRecord("sermon:d1", "sermon", "d1")
	exp := time.Now().Add(time.Minute)
	r.Locks["b1"] = &Lock{HolderID: "u1", ExpiresAt: exp}
	r.Locks["b2"] = &Lock{HolderID: "u1", ExpiresAt: exp}
	r.Locks["b3"] = &Lock{HolderID: "u2", ExpiresAt: exp}

	assert.True(t, r.ReleaseHeldBy("u1"))
	assert.Len(t, r.Locks, 1)
	assert.NotNil(t, r.Locks["b3"])
	assert.False(t, r.ReleaseHeldBy("u1"))
}

func TestTrimOperations(t *testing.T) {
	ops := make([]OpEntry, 5)
	for i := range ops {
		ops[i] = OpEntry{ID: string(rune('a' + i))}
	}

	trimmed := TrimOperations(ops, 3)
	require.Len(t, trimmed, 3)
	assert.Equal(t, "c", trimmed[0].ID)
	assert.Equal(t, "e", trimmed[2].ID)

	assert.Len(t, TrimOperations(ops, 10), 5)
	assert.Nil(t, TrimOperations(ops, 0))
}

func TestRecord_AppendOperation(t *testing.T) {
	r := NewRecord("sermon:d1", "sermon", "d1")
	for i := 0; i < 7; i++ {
		r.AppendOperation(OpEntry{ID: string(rune('a' + i))}, 5)
	}
	require.Len(t, r.Operations, 5)
	assert.Equal(t, "c", r.Operations[0].ID)
	assert.Equal(t, "g", r.Operations[4].ID)
}

func TestMemoryStore_CreateExistingFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewRecord("sermon:d1", "sermon", "d1")
	first.Participants["u1"] = &Participant{UserID: "u1"}
	require.NoError(t, store.Create(ctx, first))

	// A second create must not overwrite the first writer's record.
	second := NewRecord("sermon:d1", "sermon", "d1")
	second.Participants["u2"] = &Participant{UserID: "u2"}
	assert.ErrorIs(t, store.Create(ctx, second), ErrAlreadyExists)

	got, err := store.Get(ctx, "sermon:d1")
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.Contains(t, got.Participants, "u1")
}
