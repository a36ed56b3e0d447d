package engine

import (
	"context"
	"time"

	"RoomFM/model"
)

// HistoryWindow bounds how much play history the engine reads back. Entries
// outside the window only affect scoring quality, never correctness.
type HistoryWindow struct {
	MaxEntries int
	MaxAge     time.Duration
}

// StateStore persists the hot per-room state: playback state and queue.
// Implementations return (nil, nil) when a room has no stored state yet.
type StateStore interface {
	LoadRoomState(ctx context.Context, roomID string) (*model.PlaybackState, error)
	SaveRoomState(ctx context.Context, roomID string, state *model.PlaybackState) error
	LoadQueue(ctx context.Context, roomID string) ([]model.QueueItem, error)
	SaveQueue(ctx context.Context, roomID string, items []model.QueueItem) error
}

// HistoryStore persists the append-only play history per room.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry *model.PlayHistoryEntry) error
	LoadRecentHistory(ctx context.Context, roomID string, window HistoryWindow) ([]model.PlayHistoryEntry, error)
}

// Catalog reads and ingests tracks. TrackByID returns (nil, nil) when absent.
// UpsertTrack is idempotent by track id. MarkPlayed bumps play bookkeeping; it
// is best-effort and never called while a room scope is held.
type Catalog interface {
	TrackByID(ctx context.Context, id string) (*model.Track, error)
	TracksByArtist(ctx context.Context, artistID string) ([]model.Track, error)
	UpsertTrack(ctx context.Context, track *model.Track) error
	MarkPlayed(ctx context.Context, trackID string, at time.Time) error
}

// EmbeddingStore reads and ingests track vectors. VectorByTrack returns
// (nil, nil) when no vector has been ingested for the track. UpsertEmbedding
// is idempotent by track id.
type EmbeddingStore interface {
	VectorByTrack(ctx context.Context, trackID string) (model.Vector, error)
	UpsertEmbedding(ctx context.Context, trackID string, vec model.Vector) error
}

// RoomDirectory resolves rooms. RoomByID returns (nil, nil) when absent.
type RoomDirectory interface {
	RoomByID(ctx context.Context, id string) (*model.Room, error)
}

// Notifier receives a snapshot after every successful mutation, for the
// transport layer to broadcast. Implementations must not block.
type Notifier interface {
	PublishSnapshot(roomID string, snap *model.RoomSnapshot)
}

// NopNotifier discards snapshots.
type NopNotifier struct{}

// PublishSnapshot implements Notifier.
func (NopNotifier) PublishSnapshot(string, *model.RoomSnapshot) {}
