package repository

import (
	"context"

	"RoomFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingRepository is the data access interface for track vectors. It
// satisfies the engine's embedding store.
type EmbeddingRepository interface {
	VectorByTrack(ctx context.Context, trackID string) (model.Vector, error)
	UpsertEmbedding(ctx context.Context, trackID string, vec model.Vector) error
}

// gormEmbeddingRepository is the GORM implementation.
type gormEmbeddingRepository struct {
	db *gorm.DB
}

// NewGormEmbeddingRepository creates a GORM embedding repository.
func NewGormEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &gormEmbeddingRepository{db: db}
}

// VectorByTrack fetches the vector for a track, (nil, nil) when no vector has
// been ingested.
func (r *gormEmbeddingRepository) VectorByTrack(ctx context.Context, trackID string) (model.Vector, error) {
	var emb model.Embedding
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		First(&emb).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return emb.Vector, nil
}

// UpsertEmbedding inserts or replaces a track's vector.
func (r *gormEmbeddingRepository) UpsertEmbedding(ctx context.Context, trackID string, vec model.Vector) error {
	emb := model.Embedding{
		TrackID:   trackID,
		Vector:    vec,
		Dimension: len(vec),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "track_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vector", "dimension", "updated_at"}),
		}).
		Create(&emb).Error
}
