package model

import "time"

// Artist owns a set of tracks and scopes rooms.
type Artist struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:160;not null"`
	URI       string    `json:"uri" gorm:"size:255"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (Artist) TableName() string {
	return "artists"
}

// Track is an ingested catalog track. Core fields are immutable after ingestion;
// PlayCount and LastPlayedAt are bookkeeping maintained by the playback engine.
type Track struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	ArtistID     string     `json:"artistId" gorm:"size:36;index;not null"`
	Title        string     `json:"title" gorm:"size:200;not null"`
	URI          string     `json:"uri" gorm:"size:255;not null"`
	DurationMs   int64      `json:"durationMs" gorm:"not null"` // >= 0
	PlayCount    int        `json:"playCount" gorm:"default:0"`
	LastPlayedAt *time.Time `json:"lastPlayedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName sets the table name.
func (Track) TableName() string {
	return "tracks"
}
