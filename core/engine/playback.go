package engine

import (
	"time"

	"RoomFM/model"
)

// Playback state transitions are pure functions over PlaybackState so every
// client-facing read derives the same position from the same state. The facade
// applies them under the per-room scope and persists the results.

// effectiveOffsetMs computes the current position in the playing track at the
// supplied instant. Pure; never mutates state. While paused the offset is
// frozen at OffsetAtAnchorMs; while playing it advances linearly from the
// anchor, clamped to [0, duration]. A client joining late reads a position
// consistent with continuous playback since the anchor; there is no separate
// late-join path.
func effectiveOffsetMs(state *model.PlaybackState, now time.Time) int64 {
	if state == nil || state.Idle() {
		return 0
	}
	offset := state.OffsetAtAnchorMs
	if !state.Paused {
		offset += now.UnixMilli() - state.AnchorMs
	}
	if offset < 0 {
		offset = 0
	}
	if offset > state.TrackDurationMs {
		offset = state.TrackDurationMs
	}
	return offset
}

// startPlayback returns the state for a room that begins playing track at
// startingOffset. Listeners carry over from the previous state.
func startPlayback(prev *model.PlaybackState, track *model.Track, startingOffsetMs int64, paused bool, by string, now time.Time) model.PlaybackState {
	listeners := 0
	if prev != nil {
		listeners = prev.Listeners
	}
	return model.PlaybackState{
		TrackID:          track.ID,
		TrackDurationMs:  track.DurationMs,
		TrackTitle:       track.Title,
		StartedAtMs:      now.UnixMilli() - startingOffsetMs,
		AnchorMs:         now.UnixMilli(),
		OffsetAtAnchorMs: startingOffsetMs,
		Paused:           paused,
		Listeners:        listeners,
		UpdatedBy:        by,
	}
}

// idlePlayback returns the state for a room with nothing playing.
func idlePlayback(prev *model.PlaybackState, now time.Time) model.PlaybackState {
	listeners := 0
	if prev != nil {
		listeners = prev.Listeners
	}
	return model.PlaybackState{
		AnchorMs:  now.UnixMilli(),
		Listeners: listeners,
	}
}

// pausePlayback re-anchors the state at the instantaneous effective offset so
// time is never double-counted across the pause boundary.
func pausePlayback(state model.PlaybackState, now time.Time) model.PlaybackState {
	state.OffsetAtAnchorMs = effectiveOffsetMs(&state, now)
	state.AnchorMs = now.UnixMilli()
	state.Paused = true
	return state
}

// resumePlayback re-anchors the frozen offset at the resume instant.
func resumePlayback(state model.PlaybackState, now time.Time) model.PlaybackState {
	state.OffsetAtAnchorMs = effectiveOffsetMs(&state, now)
	state.AnchorMs = now.UnixMilli()
	state.StartedAtMs = now.UnixMilli() - state.OffsetAtAnchorMs
	state.Paused = false
	return state
}

// trackFinished reports whether the effective offset has reached the end of
// the playing track.
func trackFinished(state *model.PlaybackState, now time.Time) bool {
	if state == nil || state.Idle() || state.Paused {
		return false
	}
	return effectiveOffsetMs(state, now) >= state.TrackDurationMs
}

// historyEntryFor records the displaced track when playback moves on. The play
// counts as skipped when it ended before the track's natural end.
func historyEntryFor(roomID string, state *model.PlaybackState, now time.Time) *model.PlayHistoryEntry {
	if state == nil || state.Idle() {
		return nil
	}
	return &model.PlayHistoryEntry{
		RoomID:    roomID,
		TrackID:   state.TrackID,
		StartedAt: time.UnixMilli(state.StartedAtMs),
		EndedAt:   now,
		Skipped:   effectiveOffsetMs(state, now) < state.TrackDurationMs,
	}
}
