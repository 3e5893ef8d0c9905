package snapshotstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/repository"
)

// ArchiveIndexEntry is a row recording where an order's cold-archived copy
// lives in S3, so an operator can look up or page through archived orders
// without listing the bucket.
type ArchiveIndexEntry struct {
	ID         string `gorm:"primaryKey"`
	Toid       uint64
	S3Key      string
	ArchivedAt time.Time
}

// ArchiveIndex is a pkg/repository.GormRepository[ArchiveIndexEntry]-backed
// index over Archiver's S3 archives, kept separate from the hot GormStore singleton
// row so archive lookups never compete with the live snapshot read path.
type ArchiveIndex struct {
	repo *repository.GormRepository[ArchiveIndexEntry]
}

func NewArchiveIndex(db *gorm.DB) *ArchiveIndex {
	return &ArchiveIndex{repo: repository.NewGormRepository[ArchiveIndexEntry](db)}
}

func (idx *ArchiveIndex) Migrate() error {
	return idx.repo.Migrate()
}

// Record upserts the index entry for an order's most recent archive; an
// order archived a second time (e.g. a post-Blocking recovery that later
// terminates again) overwrites its prior entry rather than accumulating.
func (idx *ArchiveIndex) Record(ctx context.Context, toid tm2pc.Toid, s3Key string, archivedAt time.Time) error {
	entry := ArchiveIndexEntry{
		ID:         fmt.Sprintf("%d", toid),
		Toid:       uint64(toid),
		S3Key:      s3Key,
		ArchivedAt: archivedAt,
	}
	return idx.repo.Upsert(ctx, &entry)
}

func (idx *ArchiveIndex) Find(ctx context.Context, toid tm2pc.Toid) (*ArchiveIndexEntry, error) {
	return idx.repo.FindByID(ctx, fmt.Sprintf("%d", toid))
}

// List pages through the archive index, most recently archived first by
// convention (callers sort via opts.Sorts).
func (idx *ArchiveIndex) List(ctx context.Context, opts repository.QueryOptions) (*repository.PaginatedResult[ArchiveIndexEntry], error) {
	return idx.repo.FindPage(ctx, opts)
}
