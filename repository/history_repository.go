package repository

import (
	"context"
	"time"

	"RoomFM/core/engine"
	"RoomFM/model"

	"gorm.io/gorm"
)

// historyRetention bounds how long history rows are kept. Scoring only ever
// reads a window far smaller than this; older rows are dead weight.
const historyRetention = 30 * 24 * time.Hour

// HistoryRepository is the data access interface for room play history. It
// satisfies the engine's history store.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, entry *model.PlayHistoryEntry) error
	LoadRecentHistory(ctx context.Context, roomID string, window engine.HistoryWindow) ([]model.PlayHistoryEntry, error)
}

// gormHistoryRepository is the GORM implementation.
type gormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a GORM history repository.
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// AppendHistory inserts a play record and lazily prunes rows past retention
// for the same room. Pruning failures do not fail the append.
func (r *gormHistoryRepository) AppendHistory(ctx context.Context, entry *model.PlayHistoryEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	cutoff := time.Now().Add(-historyRetention)
	r.db.WithContext(ctx).
		Where("room_id = ? AND ended_at < ?", entry.RoomID, cutoff).
		Delete(&model.PlayHistoryEntry{})
	return nil
}

// LoadRecentHistory returns the newest entries inside the window, capped at
// MaxEntries, in chronological order.
func (r *gormHistoryRepository) LoadRecentHistory(ctx context.Context, roomID string, window engine.HistoryWindow) ([]model.PlayHistoryEntry, error) {
	cutoff := time.Now().Add(-window.MaxAge)
	var entries []model.PlayHistoryEntry
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND started_at >= ?", roomID, cutoff).
		Order("started_at DESC").
		Limit(window.MaxEntries).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	// Newest-first from the query, oldest-first for callers.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
