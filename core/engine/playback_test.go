package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoomFM/model"
)

func testTracks() []model.Track {
	return []model.Track{
		{ID: "t1", ArtistID: "artist-1", Title: "One", DurationMs: 180_000},
		{ID: "t2", ArtistID: "artist-1", Title: "Two", DurationMs: 200_000},
		{ID: "t3", ArtistID: "artist-1", Title: "Three", DurationMs: 240_000},
		{ID: "tx", ArtistID: "artist-2", Title: "Other", DurationMs: 100_000},
	}
}

func TestSetTrack_offset_advances_with_clock(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	snap, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice")
	if err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if snap.OffsetMs != 0 {
		t.Errorf("initial offset = %d, want 0", snap.OffsetMs)
	}

	deps.clock.Advance(42 * time.Second)
	offset, err := deps.eng.CurrentOffset(ctx, "room-1")
	if err != nil {
		t.Fatalf("CurrentOffset: %v", err)
	}
	if offset != 42_000 {
		t.Errorf("offset after 42s = %d, want 42000", offset)
	}
}

func TestSetTrack_starting_offset(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 30_000, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	deps.clock.Advance(10 * time.Second)
	offset, err := deps.eng.CurrentOffset(ctx, "room-1")
	if err != nil {
		t.Fatalf("CurrentOffset: %v", err)
	}
	if offset != 40_000 {
		t.Errorf("offset = %d, want 40000", offset)
	}
}

func TestSetTrack_unknown_track(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)

	_, err := deps.eng.SetTrack(context.Background(), "room-1", "missing", 0, false, "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetTrack_wrong_artist(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)

	_, err := deps.eng.SetTrack(context.Background(), "room-1", "tx", 0, false, "alice")
	if !errors.Is(err, ErrInvalidTrack) {
		t.Errorf("err = %v, want ErrInvalidTrack", err)
	}
}

func TestSetTrack_unknown_room(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)

	_, err := deps.eng.SetTrack(context.Background(), "no-such-room", "t1", 0, false, "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPauseResume_round_trip_continuity(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	deps.clock.Advance(30 * time.Second)
	if _, err := deps.eng.Pause(ctx, "room-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Frozen while paused, regardless of elapsed wall time.
	deps.clock.Advance(5 * time.Minute)
	offset, _ := deps.eng.CurrentOffset(ctx, "room-1")
	if offset != 30_000 {
		t.Errorf("paused offset = %d, want 30000", offset)
	}

	if _, err := deps.eng.Resume(ctx, "room-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	deps.clock.Advance(10 * time.Second)
	offset, _ = deps.eng.CurrentOffset(ctx, "room-1")
	if offset != 40_000 {
		t.Errorf("resumed offset = %d, want 40000", offset)
	}
}

func TestPause_idempotent(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	deps.clock.Advance(10 * time.Second)
	if _, err := deps.eng.Pause(ctx, "room-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	before := deps.notifier.count()

	deps.clock.Advance(10 * time.Second)
	snap, err := deps.eng.Pause(ctx, "room-1")
	if err != nil {
		t.Fatalf("second Pause: %v", err)
	}
	if snap.OffsetMs != 10_000 {
		t.Errorf("offset after double pause = %d, want 10000", snap.OffsetMs)
	}
	if deps.notifier.count() != before {
		t.Error("no-op pause should not emit a snapshot")
	}
}

func TestPause_on_idle_room_is_noop(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)

	snap, err := deps.eng.Pause(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !snap.Playback.Idle() {
		t.Error("room should stay idle")
	}
}

func TestOffset_clamped_to_duration(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	// Way past the 180s track end.
	deps.clock.Advance(time.Hour)
	offset, _ := deps.eng.CurrentOffset(ctx, "room-1")
	if offset != 180_000 {
		t.Errorf("offset = %d, want clamp at 180000", offset)
	}
}

func TestAdvanceIfFinished_moves_to_queue_head(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if _, err := deps.eng.Enqueue(ctx, "room-1", "t2", "", "bob"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deps.clock.Advance(180 * time.Second)
	advanced, snap, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil {
		t.Fatalf("AdvanceIfFinished: %v", err)
	}
	if !advanced {
		t.Fatal("expected an advance at track end")
	}
	if snap.Playback.TrackID != "t2" {
		t.Errorf("playing = %s, want t2", snap.Playback.TrackID)
	}
	if snap.OffsetMs != 0 {
		t.Errorf("new track offset = %d, want 0", snap.OffsetMs)
	}
	if snap.QueueLength != 0 {
		t.Errorf("queue length = %d, want 0", snap.QueueLength)
	}

	hist, _ := deps.history.LoadRecentHistory(ctx, "room-1", HistoryWindow{MaxEntries: 10, MaxAge: time.Hour})
	if len(hist) != 1 || hist[0].TrackID != "t1" {
		t.Fatalf("history = %+v, want one t1 entry", hist)
	}
	if hist[0].Skipped {
		t.Error("a natural end must not count as skipped")
	}
}

func TestAdvanceIfFinished_noop_before_end(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	deps.clock.Advance(90 * time.Second)

	advanced, snap, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil {
		t.Fatalf("AdvanceIfFinished: %v", err)
	}
	if advanced {
		t.Error("must not advance mid-track")
	}
	if snap.Playback.TrackID != "t1" {
		t.Errorf("playing = %s, want t1", snap.Playback.TrackID)
	}
}

func TestAdvanceIfFinished_empty_queue_goes_idle(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	deps.clock.Advance(181 * time.Second)

	advanced, snap, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil {
		t.Fatalf("AdvanceIfFinished: %v", err)
	}
	if !advanced {
		t.Fatal("expected an advance")
	}
	if !snap.Playback.Idle() {
		t.Errorf("playback = %+v, want idle", snap.Playback)
	}
}

func TestAdvanceIfFinished_only_once(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if _, err := deps.eng.Enqueue(ctx, "room-1", "t2", "", "bob"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := deps.eng.Enqueue(ctx, "room-1", "t3", "", "bob"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deps.clock.Advance(180 * time.Second)
	first, _, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil {
		t.Fatalf("first advance: %v", err)
	}
	second, snap, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}

	if !first || second {
		t.Errorf("advances = %v,%v, want true,false", first, second)
	}
	if snap.QueueLength != 1 {
		t.Errorf("queue length = %d, want 1 (only one dequeue)", snap.QueueLength)
	}
}

func TestAdvanceIfFinished_not_while_paused(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 179_000, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if _, err := deps.eng.Pause(ctx, "room-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	deps.clock.Advance(time.Hour)

	advanced, _, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil {
		t.Fatalf("AdvanceIfFinished: %v", err)
	}
	if advanced {
		t.Error("a paused room must not advance")
	}
}

func TestSetTrack_displaced_track_recorded_as_skipped(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack t1: %v", err)
	}
	deps.clock.Advance(20 * time.Second)
	if _, err := deps.eng.SetTrack(ctx, "room-1", "t2", 0, false, "bob"); err != nil {
		t.Fatalf("SetTrack t2: %v", err)
	}

	hist, _ := deps.history.LoadRecentHistory(ctx, "room-1", HistoryWindow{MaxEntries: 10, MaxAge: time.Hour})
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if hist[0].TrackID != "t1" || !hist[0].Skipped {
		t.Errorf("history entry = %+v, want skipped t1", hist[0])
	}
}

func TestJoinLeave_auto_pause_resume(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if _, err := deps.eng.Join(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	deps.clock.Advance(30 * time.Second)
	snap, err := deps.eng.Leave(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if !snap.Playback.Paused {
		t.Error("last leave should pause playback")
	}
	if snap.Playback.Listeners != 0 {
		t.Errorf("listeners = %d, want 0", snap.Playback.Listeners)
	}

	// Offset stays frozen while the room is empty.
	deps.clock.Advance(10 * time.Minute)
	snap, err = deps.eng.Join(ctx, "room-1", "bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if snap.Playback.Paused {
		t.Error("join should resume a paused room")
	}
	if snap.OffsetMs != 30_000 {
		t.Errorf("offset on rejoin = %d, want 30000", snap.OffsetMs)
	}
}

func TestLeave_never_goes_negative(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)

	snap, err := deps.eng.Leave(context.Background(), "room-1", "ghost")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if snap.Playback.Listeners != 0 {
		t.Errorf("listeners = %d, want 0", snap.Playback.Listeners)
	}
}

func TestSetTrack_storage_failure_rolls_back(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	deps.state.fail = true
	deps.clock.Advance(5 * time.Second)
	_, err := deps.eng.SetTrack(ctx, "room-1", "t2", 0, false, "bob")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	deps.state.fail = false

	// In-memory state still reflects the last committed write.
	pb, _, err := deps.eng.Playback(ctx, "room-1")
	if err != nil {
		t.Fatalf("Playback: %v", err)
	}
	if pb.TrackID != "t1" {
		t.Errorf("playing = %s, want t1 after failed swap", pb.TrackID)
	}
}

func TestSetTrack_failed_swap_appends_no_history(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	deps.clock.Advance(20 * time.Second)

	deps.state.fail = true
	if _, err := deps.eng.SetTrack(ctx, "room-1", "t2", 0, false, "bob"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	deps.state.fail = false

	hist, _ := deps.history.LoadRecentHistory(ctx, "room-1", HistoryWindow{MaxEntries: 10, MaxAge: time.Hour})
	if len(hist) != 0 {
		t.Fatalf("history = %+v, want none for an aborted swap", hist)
	}

	// The retried swap records the displaced play exactly once.
	if _, err := deps.eng.SetTrack(ctx, "room-1", "t2", 0, false, "bob"); err != nil {
		t.Fatalf("retry SetTrack: %v", err)
	}
	hist, _ = deps.history.LoadRecentHistory(ctx, "room-1", HistoryWindow{MaxEntries: 10, MaxAge: time.Hour})
	if len(hist) != 1 || hist[0].TrackID != "t1" {
		t.Errorf("history after retry = %+v, want one t1 entry", hist)
	}
}

func TestSetTrack_history_append_failure_does_not_abort(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	deps.history.fail = true
	snap, err := deps.eng.SetTrack(ctx, "room-1", "t2", 0, false, "bob")
	if err != nil {
		t.Fatalf("SetTrack with failing history: %v", err)
	}
	if snap.Playback.TrackID != "t2" {
		t.Errorf("playing = %s, want t2 despite lost history entry", snap.Playback.TrackID)
	}
}

func TestAdvanceIfFinished_failed_state_save_leaves_queue_and_history(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if _, err := deps.eng.Enqueue(ctx, "room-1", "t2", "", "bob"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	deps.clock.Advance(180 * time.Second)

	// Queue writes succeed; only the state save fails, so the compensating
	// queue restore must run.
	deps.state.failSaveState = true
	if _, _, err := deps.eng.AdvanceIfFinished(ctx, "room-1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	deps.state.failSaveState = false

	hist, _ := deps.history.LoadRecentHistory(ctx, "room-1", HistoryWindow{MaxEntries: 10, MaxAge: time.Hour})
	if len(hist) != 0 {
		t.Fatalf("history = %+v, want none for an aborted advance", hist)
	}
	items, _ := deps.eng.Queue(ctx, "room-1")
	if len(items) != 1 || items[0].TrackID != "t2" {
		t.Fatalf("queue = %+v, want t2 still queued", items)
	}
	stored, _ := deps.state.LoadQueue(ctx, "room-1")
	if len(stored) != 1 || stored[0].TrackID != "t2" {
		t.Errorf("stored queue = %+v, want restored t2", stored)
	}

	// The retried advance completes and records the play once.
	advanced, snap, err := deps.eng.AdvanceIfFinished(ctx, "room-1")
	if err != nil || !advanced {
		t.Fatalf("retry advance = %v, %v, want success", advanced, err)
	}
	if snap.Playback.TrackID != "t2" {
		t.Errorf("playing = %s, want t2", snap.Playback.TrackID)
	}
	hist, _ = deps.history.LoadRecentHistory(ctx, "room-1", HistoryWindow{MaxEntries: 10, MaxAge: time.Hour})
	if len(hist) != 1 || hist[0].TrackID != "t1" {
		t.Errorf("history after retry = %+v, want one t1 entry", hist)
	}
}

func TestHydration_restores_from_store(t *testing.T) {
	deps := newTestDeps(t, testTracks()...)
	ctx := context.Background()

	if _, err := deps.eng.SetTrack(ctx, "room-1", "t1", 0, false, "alice"); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	deps.clock.Advance(15 * time.Second)

	// A fresh engine sharing the same stores picks the state up.
	eng2, err := New(Deps{
		Clock:      deps.clock,
		State:      deps.state,
		History:    deps.history,
		Catalog:    deps.catalog,
		Embeddings: deps.embeddings,
		Rooms:      deps.rooms,
		Scorer:     deps.scorer,
		Window:     HistoryWindow{MaxEntries: 25, MaxAge: 6 * time.Hour},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	offset, err := eng2.CurrentOffset(ctx, "room-1")
	if err != nil {
		t.Fatalf("CurrentOffset: %v", err)
	}
	if offset != 15_000 {
		t.Errorf("rehydrated offset = %d, want 15000", offset)
	}
}
