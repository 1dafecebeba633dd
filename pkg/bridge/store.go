// Copyright 2024-2026 Aiku AI

package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MessageMapping links one source message to the destination message(s) it
// produced under a route. At most one row exists per (route, source id).
type MessageMapping struct {
	ID             uint   `gorm:"primaryKey"`
	RouteName      string `gorm:"uniqueIndex:uniq_route_source;size:64"`
	SourceID       int64  `gorm:"uniqueIndex:uniq_route_source"`
	DestinationIDs string `gorm:"type:text"` // JSON-encoded []int64, in send order
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RouteCursor is the per-route watermark of the highest source message id
// successfully mapped.
type RouteCursor struct {
	ID           uint   `gorm:"primaryKey"`
	RouteName    string `gorm:"uniqueIndex;size:64"`
	LastSourceID int64
	UpdatedAt    time.Time
}

// MissedForward records a should-have-forwarded message whose delivery
// failed. Nothing retries these automatically; they exist for operator
// inspection.
type MissedForward struct {
	ID                 uint   `gorm:"primaryKey"`
	RouteName          string `gorm:"index;size:64"`
	SourceID           int64  `gorm:"index"`
	DestinationChannel int64
	Reason             string    `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"index"`
}

// Store is the durable mapping store. It is the only component that touches
// persisted state; everything else goes through its contract.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the SQLite-backed store at path and migrates
// the schema.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping store: %w", err)
	}
	if err := db.AutoMigrate(&MessageMapping{}, &RouteCursor{}, &MissedForward{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mapping store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends or overwrites the mapping for (route, sourceID). Calling it
// again with the same key replaces the previous row, which makes replay
// idempotent.
func (s *Store) Record(route string, sourceID int64, destinationIDs []int64) error {
	encoded, err := json.Marshal(destinationIDs)
	if err != nil {
		return fmt.Errorf("failed to encode destination ids: %w", err)
	}
	mapping := MessageMapping{
		RouteName:      route,
		SourceID:       sourceID,
		DestinationIDs: string(encoded),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "route_name"}, {Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"destination_ids", "updated_at"}),
	}).Create(&mapping).Error
	if err != nil {
		return fmt.Errorf("failed to record mapping %s/%d: %w", route, sourceID, err)
	}
	return nil
}

// Lookup returns the destination ids mapped to (route, sourceID), or
// ErrMappingNotFound.
func (s *Store) Lookup(route string, sourceID int64) ([]int64, error) {
	var mapping MessageMapping
	err := s.db.Where("route_name = ? AND source_id = ?", route, sourceID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up mapping %s/%d: %w", route, sourceID, err)
	}
	var ids []int64
	if err := json.Unmarshal([]byte(mapping.DestinationIDs), &ids); err != nil {
		return nil, fmt.Errorf("corrupt destination ids for %s/%d: %w", route, sourceID, err)
	}
	return ids, nil
}

// Delete removes the mapping for (route, sourceID). Deleting an absent
// mapping is not an error.
func (s *Store) Delete(route string, sourceID int64) error {
	err := s.db.Where("route_name = ? AND source_id = ?", route, sourceID).Delete(&MessageMapping{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete mapping %s/%d: %w", route, sourceID, err)
	}
	return nil
}

// Cursor returns the highest source id successfully mapped for the route,
// or 0 when the route has never mapped anything.
func (s *Store) Cursor(route string) (int64, error) {
	var cursor RouteCursor
	err := s.db.Where("route_name = ?", route).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor for %s: %w", route, err)
	}
	return cursor.LastSourceID, nil
}

// AdvanceCursor moves the route cursor forward to sourceID. Calls with a
// sourceID at or below the current cursor are no-ops. The guard lives in the
// UPDATE's WHERE clause, so the cursor is monotonically non-decreasing even
// under concurrent event handlers.
func (s *Store) AdvanceCursor(route string, sourceID int64) error {
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&RouteCursor{RouteName: route, LastSourceID: sourceID}).Error
	if err != nil {
		return fmt.Errorf("failed to advance cursor for %s: %w", route, err)
	}
	err = s.db.Model(&RouteCursor{}).
		Where("route_name = ? AND last_source_id < ?", route, sourceID).
		Update("last_source_id", sourceID).Error
	if err != nil {
		return fmt.Errorf("failed to advance cursor for %s: %w", route, err)
	}
	return nil
}

// RecordMissed writes a missed-forward record for a delivery failure.
func (s *Store) RecordMissed(route string, sourceID, destinationChannel int64, reason string) error {
	record := MissedForward{
		RouteName:          route,
		SourceID:           sourceID,
		DestinationChannel: destinationChannel,
		Reason:             reason,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record missed forward %s/%d: %w", route, sourceID, err)
	}
	return nil
}

// MissedForwards returns the missed-forward records for a route, oldest
// first. An empty route returns records for all routes.
func (s *Store) MissedForwards(route string) ([]MissedForward, error) {
	var records []MissedForward
	q := s.db.Order("id asc")
	if route != "" {
		q = q.Where("route_name = ?", route)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list missed forwards: %w", err)
	}
	return records, nil
}
