package snapshotstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tm2pc/txmanager/internal/tm2pc"
)

func setupTestGormDB(t *testing.T) *gorm.DB {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return gormDB
}

func TestArchiveIndexRecordThenFind(t *testing.T) {
	idx := NewArchiveIndex(setupTestGormDB(t))
	require.NoError(t, idx.Migrate())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, idx.Record(context.Background(), tm2pc.Toid(5), "orders/2026-01-02/5.json.gz", at))

	entry, err := idx.Find(context.Background(), tm2pc.Toid(5))
	require.NoError(t, err)
	assert.Equal(t, "orders/2026-01-02/5.json.gz", entry.S3Key)
	assert.Equal(t, uint64(5), entry.Toid)
}

func TestArchiveIndexRecordOverwritesPriorEntry(t *testing.T) {
	idx := NewArchiveIndex(setupTestGormDB(t))
	require.NoError(t, idx.Migrate())

	require.NoError(t, idx.Record(context.Background(), tm2pc.Toid(5), "orders/2026-01-01/5.json.gz", time.Now()))
	require.NoError(t, idx.Record(context.Background(), tm2pc.Toid(5), "orders/2026-01-02/5.json.gz", time.Now()))

	entry, err := idx.Find(context.Background(), tm2pc.Toid(5))
	require.NoError(t, err)
	assert.Equal(t, "orders/2026-01-02/5.json.gz", entry.S3Key)
}
