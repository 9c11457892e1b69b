package postgres

import (
	"context"
	"hedgedoc-server/core"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a live database and are skipped unless
// TEST_DATABASE_URL points at a disposable PostgreSQL instance.
func setupTestStore(t *testing.T) *documentStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := NewDocumentStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDocumentLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, &core.Document{Content: "hello", RoomID: "pg-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(ctx, created.ID) })
	assert.Equal(t, core.DefaultTitle, created.Title)

	updated, err := store.Update(ctx, created.ID, core.DocumentUpdate{Content: core.StringPtr("world")})
	require.NoError(t, err)
	assert.Equal(t, "world", updated.Content)
	assert.Equal(t, core.DefaultTitle, updated.Title)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	found, err := store.FindID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "world", found.Content)

	docs, err := store.ListByRoom(ctx, "pg-test")
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}

func TestNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.FindID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)

	_, err = store.Update(ctx, "does-not-exist", core.DocumentUpdate{Content: core.StringPtr("x")})
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "does-not-exist"), core.ErrDocumentNotFound)
}

func TestTouchRoom(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.TouchRoom(ctx, "pg-room"))
	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)

	var seen bool
	for _, room := range rooms {
		if room.ID == "pg-room" {
			seen = true
			assert.Positive(t, room.LastActive)
		}
	}
	assert.True(t, seen, "touched room should be listed")
}
