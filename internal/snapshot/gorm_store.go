package snapshot

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"collabhub/internal/logging"
)

var log = logging.Named("snapshot")

// gormStore is the durable Store backed by Postgres.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore opens dsn and migrates the room_snapshots table.
func NewGormStore(dsn string) (Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: connect: %w", err)
	}

	if err := db.AutoMigrate(&RoomSnapshot{}); err != nil {
		return nil, fmt.Errorf("snapshot: migrate: %w", err)
	}

	log.Info().Msg("postgres snapshot store ready")
	return &gormStore{db: db}, nil
}

func (s *gormStore) Load(ctx context.Context, room string) ([]byte, error) {
	var row RoomSnapshot
	err := s.db.WithContext(ctx).Where("room = ?", room).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %s: %w", room, err)
	}
	return row.State, nil
}

// Save replaces the row for room wholesale — one row per room, not an
// append-only log, since the in-memory Document already holds the full
// op history and only needs a fast-resume blob on disk.
func (s *gormStore) Save(ctx context.Context, room string, state []byte) error {
	row := RoomSnapshot{Room: room, State: state}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("snapshot: save %s: %w", room, err)
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, room string) error {
	if err := s.db.WithContext(ctx).Where("room = ?", room).Delete(&RoomSnapshot{}).Error; err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", room, err)
	}
	return nil
}

func (s *gormStore) List(ctx context.Context) ([]string, error) {
	var rooms []string
	err := s.db.WithContext(ctx).Model(&RoomSnapshot{}).Pluck("room", &rooms).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	return rooms, nil
}
