package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Vector is a fixed-dimension embedding stored as a JSON column.
type Vector []float64

// Scan implements the sql.Scanner interface.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var bytes []byte
	switch raw := value.(type) {
	case []byte:
		bytes = raw
	case string:
		bytes = []byte(raw)
	default:
		*v = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*v = nil
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// Value implements the driver.Valuer interface.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Embedding maps a track to its vector. One vector per track, dimension fixed
// process-wide at startup.
type Embedding struct {
	TrackID   string    `json:"trackId" gorm:"primaryKey;size:36"`
	Vector    Vector    `json:"vector" gorm:"type:json"`
	Dimension int       `json:"dimension" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (Embedding) TableName() string {
	return "embeddings"
}
