package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/database"
)

func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}
}

// snapshotRow is the gorm model backing the durable store. The snapshot
// itself is kept as an opaque JSON blob: tm2pc.Data's shape can evolve
// without a migration on this table.
type snapshotRow struct {
	ID        uint `gorm:"primaryKey"`
	Payload   []byte
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string { return "tm2pc_snapshots" }

// singletonID is the row id the whole-TM snapshot always lives at: there
// is exactly one tm2pc.TM per process, so one row is all the durable
// store needs.
const singletonID = 1

// GormStore persists tm2pc.Data through pkg/database, the same gorm
// wrapper the rest of the pack uses for its own persistence.
type GormStore struct {
	db *database.DB
}

func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the backing table. Called once at startup alongside
// any other AutoMigrate calls.
func (s *GormStore) Migrate() error {
	return s.db.Migrate(&snapshotRow{})
}

func (s *GormStore) Save(ctx context.Context, data tm2pc.Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("snapshotstore: marshal: %w", err)
	}

	row := snapshotRow{ID: singletonID, Payload: payload, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).
		Clauses(upsertClause()).
		Create(&row).Error
}

func (s *GormStore) Load(ctx context.Context) (tm2pc.Data, bool, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).First(&row, singletonID).Error
	if err == gorm.ErrRecordNotFound {
		return tm2pc.Data{}, false, nil
	}
	if err != nil {
		return tm2pc.Data{}, false, fmt.Errorf("snapshotstore: load: %w", err)
	}

	var data tm2pc.Data
	if err := json.Unmarshal(row.Payload, &data); err != nil {
		return tm2pc.Data{}, false, fmt.Errorf("snapshotstore: unmarshal: %w", err)
	}
	return data, true, nil
}
