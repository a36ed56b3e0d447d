package repository

import (
	"context"

	"RoomFM/model"

	"gorm.io/gorm"
)

// RoomRepository is the data access interface for rooms. RoomByID satisfies
// the engine's room directory.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	RoomByID(ctx context.Context, id string) (*model.Room, error)
	List(ctx context.Context, limit, offset int) ([]*model.Room, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// gormRoomRepository is the GORM implementation.
type gormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a GORM room repository.
func NewGormRoomRepository(db *gorm.DB) RoomRepository {
	return &gormRoomRepository{db: db}
}

// Create inserts a new room.
func (r *gormRoomRepository) Create(ctx context.Context, room *model.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// RoomByID fetches a room by id, (nil, nil) when absent.
func (r *gormRoomRepository) RoomByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&room).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// List returns rooms ordered by creation time, newest first.
func (r *gormRoomRepository) List(ctx context.Context, limit, offset int) ([]*model.Room, error) {
	var rooms []*model.Room
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	return rooms, err
}

// ExistsByID checks whether a room id is taken.
func (r *gormRoomRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Room{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}
