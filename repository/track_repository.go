package repository

import (
	"context"
	"time"

	"RoomFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository is the data access interface for artists and tracks. The
// TrackByID, TracksByArtist, UpsertTrack, and MarkPlayed methods satisfy the
// engine's catalog.
type TrackRepository interface {
	UpsertArtist(ctx context.Context, artist *model.Artist) error
	ArtistByID(ctx context.Context, id string) (*model.Artist, error)

	TrackByID(ctx context.Context, id string) (*model.Track, error)
	TracksByArtist(ctx context.Context, artistID string) ([]model.Track, error)
	UpsertTrack(ctx context.Context, track *model.Track) error
	MarkPlayed(ctx context.Context, trackID string, at time.Time) error
}

// gormTrackRepository is the GORM implementation.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a GORM track repository.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// UpsertArtist inserts or updates an artist by id.
func (r *gormTrackRepository) UpsertArtist(ctx context.Context, artist *model.Artist) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "uri", "updated_at"}),
		}).
		Create(artist).Error
}

// ArtistByID fetches an artist by id, (nil, nil) when absent.
func (r *gormTrackRepository) ArtistByID(ctx context.Context, id string) (*model.Artist, error) {
	var artist model.Artist
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&artist).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &artist, nil
}

// TrackByID fetches a track by id, (nil, nil) when absent.
func (r *gormTrackRepository) TrackByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// TracksByArtist returns the artist's catalog in stable ingestion order.
func (r *gormTrackRepository) TracksByArtist(ctx context.Context, artistID string) ([]model.Track, error) {
	var tracks []model.Track
	err := r.db.WithContext(ctx).
		Where("artist_id = ?", artistID).
		Order("created_at ASC, id ASC").
		Find(&tracks).Error
	return tracks, err
}

// UpsertTrack inserts or updates a track by id. Play bookkeeping columns are
// left untouched on conflict so re-ingestion never resets counts.
func (r *gormTrackRepository) UpsertTrack(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"artist_id", "title", "uri", "duration_ms", "updated_at"}),
		}).
		Create(track).Error
}

// MarkPlayed bumps the play count and last played instant.
func (r *gormTrackRepository) MarkPlayed(ctx context.Context, trackID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", trackID).
		Updates(map[string]interface{}{
			"play_count":     gorm.Expr("play_count + 1"),
			"last_played_at": at,
		}).Error
}
