package engine

import (
	"time"

	"RoomFM/model"

	"github.com/google/uuid"
)

// Queue operations are pure functions over ordered QueueItem slices. The
// facade serializes them per room, which gives racing enqueues a total order:
// positions stay contiguous from 1 with no duplicates or gaps.

// enqueueItem appends a new item at position max+1.
func enqueueItem(items []model.QueueItem, roomID string, track *model.Track, note, requestedBy string, now time.Time) []model.QueueItem {
	item := model.QueueItem{
		ID:              uuid.NewString(),
		RoomID:          roomID,
		TrackID:         track.ID,
		Title:           track.Title,
		TrackDurationMs: track.DurationMs,
		Position:        len(items) + 1,
		Note:            note,
		RequestedBy:     requestedBy,
		EnqueuedAt:      now.UnixMilli(),
	}
	out := make([]model.QueueItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, item)
}

// dequeueNext removes and returns the item with the lowest position,
// renumbering the remainder from 1. ok is false when the queue is empty.
func dequeueNext(items []model.QueueItem) (head model.QueueItem, rest []model.QueueItem, ok bool) {
	if len(items) == 0 {
		return model.QueueItem{}, items, false
	}
	head = items[0]
	rest = make([]model.QueueItem, len(items)-1)
	copy(rest, items[1:])
	renumber(rest)
	return head, rest, true
}

// removeItem withdraws the item with the given id, shifting subsequent
// positions down by one. ok is false when the id is absent.
func removeItem(items []model.QueueItem, itemID string) (rest []model.QueueItem, ok bool) {
	idx := -1
	for i := range items {
		if items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return items, false
	}
	rest = make([]model.QueueItem, 0, len(items)-1)
	rest = append(rest, items[:idx]...)
	rest = append(rest, items[idx+1:]...)
	renumber(rest)
	return rest, true
}

// seedItems appends curator-seeded tracks in catalog order, skipping any track
// already queued or already seen in the room's play history. Re-running a seed
// is therefore idempotent and never disturbs existing positions.
func seedItems(items []model.QueueItem, roomID string, tracks []model.Track, seen map[string]bool, now time.Time) []model.QueueItem {
	queued := make(map[string]bool, len(items))
	for i := range items {
		queued[items[i].TrackID] = true
	}

	out := items
	for i := range tracks {
		track := &tracks[i]
		if queued[track.ID] || seen[track.ID] {
			continue
		}
		out = enqueueItem(out, roomID, track, "", "", now)
		queued[track.ID] = true
	}
	return out
}

func renumber(items []model.QueueItem) {
	for i := range items {
		items[i].Position = i + 1
	}
}

// queueHead returns a copy of the first item, or nil when empty.
func queueHead(items []model.QueueItem) *model.QueueItem {
	if len(items) == 0 {
		return nil
	}
	head := items[0]
	return &head
}
