package repositories

import (
	"context"
	"testing"
	"time"

	"cms-publisher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertKeepsOneRowPerPlatform(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "ada")

	first := &models.PlatformConnection{
		UserID:      user.ID,
		Platform:    models.PlatformDevTo,
		Credentials: []byte("one"),
		Status:      models.ConnectionConnected,
		Metadata:    map[string]any{"username": "ada"},
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.PlatformConnection{
		UserID:      user.ID,
		Platform:    models.PlatformDevTo,
		Credentials: []byte("two"),
		Status:      models.ConnectionConnected,
		Metadata:    map[string]any{"username": "ada2"},
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	conns, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, []byte("two"), conns[0].Credentials)
	assert.Equal(t, "ada2", conns[0].MetadataString("username"))
}

func TestCredentialsAndStatusUpdates(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "ada")

	conn := &models.PlatformConnection{
		UserID:      user.ID,
		Platform:    models.PlatformWix,
		Credentials: []byte("old"),
		Status:      models.ConnectionConnected,
	}
	require.NoError(t, repo.Upsert(ctx, conn))

	require.NoError(t, repo.SetStatus(ctx, conn.ID, models.ConnectionError))
	count, err := repo.CountConnected(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.UpdateCredentials(ctx, conn.ID, []byte("new"), time.Now().UTC()))
	stored, err := repo.Get(ctx, user.ID, models.PlatformWix)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), stored.Credentials)
	assert.Equal(t, models.ConnectionConnected, stored.Status)
	assert.NotNil(t, stored.LastSyncAt)

	assert.ErrorIs(t, repo.UpdateCredentials(ctx, 9999, []byte("x"), time.Now()), ErrNotFound)
}

func TestDeleteConnection(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "ada")

	require.NoError(t, repo.Upsert(ctx, &models.PlatformConnection{
		UserID:      user.ID,
		Platform:    models.PlatformGhost,
		Credentials: []byte("k"),
		Status:      models.ConnectionConnected,
	}))

	deleted, err := repo.Delete(ctx, user.ID, models.PlatformGhost)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, user.ID, models.PlatformGhost)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.Get(ctx, user.ID, models.PlatformGhost)
	assert.ErrorIs(t, err, ErrNotFound)
}
