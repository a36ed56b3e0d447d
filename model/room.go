package model

import "time"

// Room is a listening space scoped to one artist.
type Room struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ArtistID  string    `json:"artistId" gorm:"size:36;index;not null"`
	Name      string    `json:"name" gorm:"size:160;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName sets the table name.
func (Room) TableName() string {
	return "rooms"
}

// PlayHistoryEntry records one finished (or skipped) play in a room.
// Append-only; only a bounded recent window is ever read back.
type PlayHistoryEntry struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomID    string    `json:"roomId" gorm:"size:36;index;not null"`
	TrackID   string    `json:"trackId" gorm:"size:36;not null"`
	StartedAt time.Time `json:"startedAt" gorm:"index;not null"`
	EndedAt   time.Time `json:"endedAt" gorm:"not null"`
	Skipped   bool      `json:"skipped" gorm:"default:false"`
}

// TableName sets the table name.
func (PlayHistoryEntry) TableName() string {
	return "room_play_history"
}

// ========== Non-persisted structures (Redis and engine state) ==========

// QueueItem is one pending track in a room's play queue. Track title and
// duration are denormalized at enqueue time so queue operations never need a
// catalog round trip.
type QueueItem struct {
	ID              string `json:"id"`
	RoomID          string `json:"roomId"`
	TrackID         string `json:"trackId"`
	Title           string `json:"title,omitempty"`
	TrackDurationMs int64  `json:"trackDurationMs"`
	Position        int    `json:"position"` // 1..N, contiguous, ascending play order
	Note            string `json:"note,omitempty"`
	RequestedBy     string `json:"requestedBy,omitempty"` // empty for curator-seeded items
	EnqueuedAt      int64  `json:"enqueuedAt"`            // unix ms
}

// PlaybackState is the authoritative "what is playing and where" for a room.
// The effective offset at instant t is OffsetAtAnchorMs when paused, otherwise
// OffsetAtAnchorMs + (t - AnchorMs) clamped to [0, TrackDurationMs].
type PlaybackState struct {
	TrackID          string `json:"trackId,omitempty"` // empty when the room is idle
	TrackDurationMs  int64  `json:"trackDurationMs,omitempty"`
	TrackTitle       string `json:"trackTitle,omitempty"`
	StartedAtMs      int64  `json:"startedAtMs,omitempty"` // unix ms when the current track began
	AnchorMs         int64  `json:"anchorMs"`              // unix ms when the offset was last authoritatively set
	OffsetAtAnchorMs int64  `json:"offsetAtAnchorMs"`
	Paused           bool   `json:"paused"`
	Listeners        int    `json:"listeners"`
	UpdatedBy        string `json:"updatedBy,omitempty"`
}

// Idle reports whether nothing is playing.
func (s *PlaybackState) Idle() bool {
	return s.TrackID == ""
}

// RankedSuggestion is a transient scored candidate, recomputed per request.
type RankedSuggestion struct {
	TrackID   string             `json:"trackId"`
	Title     string             `json:"title,omitempty"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// RoomSnapshot is emitted to the transport layer whenever room state changes.
type RoomSnapshot struct {
	RoomID        string             `json:"roomId"`
	Playback      PlaybackState      `json:"playback"`
	OffsetMs      int64              `json:"offsetMs"`
	QueueHead     *QueueItem         `json:"queueHead,omitempty"`
	QueueLength   int                `json:"queueLength"`
	Suggestions   []RankedSuggestion `json:"suggestions,omitempty"`
	GeneratedAtMs int64              `json:"generatedAtMs"`
}
