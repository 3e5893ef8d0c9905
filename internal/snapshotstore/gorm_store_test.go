package snapshotstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/database"
)

func setupTestDB(t *testing.T) *database.DB {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return &database.DB{DB: gormDB}
}

func TestGormStoreLoadWithNoSnapshotReturnsNotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	require.NoError(t, store.Migrate())

	_, found, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGormStoreSaveThenLoadRoundTrips(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	require.NoError(t, store.Migrate())

	data := tm2pc.Data{
		Index:      3,
		FirstIndex: 1,
		Alive:      []tm2pc.Toid{1, 2},
	}

	require.NoError(t, store.Save(context.Background(), data))

	loaded, found, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tm2pc.Toid(3), loaded.Index)
	assert.Equal(t, tm2pc.Toid(1), loaded.FirstIndex)
	assert.Equal(t, []tm2pc.Toid{1, 2}, loaded.Alive)
}

func TestGormStoreSaveOverwritesPreviousSnapshot(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	require.NoError(t, store.Migrate())

	require.NoError(t, store.Save(context.Background(), tm2pc.Data{Index: 1}))
	require.NoError(t, store.Save(context.Background(), tm2pc.Data{Index: 2}))

	loaded, found, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tm2pc.Toid(2), loaded.Index)
}
