package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RoomFM/logger"
	"RoomFM/model"
)

// Engine composes the playback synchronizer, queue manager, and recommendation
// scorer per room. All mutation of one room's state is serialized through the
// room's mutex; different rooms proceed fully in parallel and share nothing.
// No room mutex is ever held across a Catalog or EmbeddingStore call; storage
// (StateStore, HistoryStore) calls are synchronous within the room scope.
type Engine struct {
	clock      Clock
	state      StateStore
	history    HistoryStore
	catalog    Catalog
	embeddings EmbeddingStore
	rooms      RoomDirectory
	notifier   Notifier
	scorer     *Scorer
	window     HistoryWindow

	mu        sync.Mutex
	roomStats map[string]*roomState
}

// roomState is the in-memory authoritative state of one room, guarded by mu.
// It is hydrated lazily from the state store on first touch.
type roomState struct {
	mu         sync.Mutex
	loaded     bool
	room       model.Room
	playback   model.PlaybackState
	queue      []model.QueueItem
	suggested  map[string]bool
	lastRanked []model.RankedSuggestion
}

// Deps wires the engine's collaborators.
type Deps struct {
	Clock      Clock // defaults to SystemClock
	State      StateStore
	History    HistoryStore
	Catalog    Catalog
	Embeddings EmbeddingStore
	Rooms      RoomDirectory
	Notifier   Notifier // defaults to NopNotifier
	Scorer     *Scorer
	Window     HistoryWindow
}

// New builds an engine from its collaborators.
func New(deps Deps) (*Engine, error) {
	if deps.State == nil || deps.History == nil || deps.Catalog == nil ||
		deps.Embeddings == nil || deps.Rooms == nil || deps.Scorer == nil {
		return nil, fmt.Errorf("%w: missing engine collaborator", ErrInvalidConfiguration)
	}
	if deps.Window.MaxEntries <= 0 || deps.Window.MaxAge <= 0 {
		return nil, fmt.Errorf("%w: history window must be positive", ErrInvalidConfiguration)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	return &Engine{
		clock:      deps.Clock,
		state:      deps.State,
		history:    deps.History,
		catalog:    deps.Catalog,
		embeddings: deps.Embeddings,
		rooms:      deps.Rooms,
		notifier:   deps.Notifier,
		scorer:     deps.Scorer,
		window:     deps.Window,
		roomStats:  make(map[string]*roomState),
	}, nil
}

// Scorer exposes the scorer for runtime weight changes.
func (e *Engine) Scorer() *Scorer {
	return e.scorer
}

func (e *Engine) roomEntry(roomID string) *roomState {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.roomStats[roomID]
	if !ok {
		rs = &roomState{suggested: make(map[string]bool)}
		e.roomStats[roomID] = rs
	}
	return rs
}

// withRoom runs fn with the room's mutex held and its state hydrated. The
// mutex is released on every exit path.
func (e *Engine) withRoom(ctx context.Context, roomID string, fn func(rs *roomState) error) error {
	rs := e.roomEntry(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := e.hydrate(ctx, rs, roomID); err != nil {
		return err
	}
	return fn(rs)
}

// hydrate loads room, playback state, and queue from storage. Called with the
// room mutex held.
func (e *Engine) hydrate(ctx context.Context, rs *roomState, roomID string) error {
	if rs.loaded {
		return nil
	}

	room, err := e.rooms.RoomByID(ctx, roomID)
	if err != nil {
		return storageErr("load room", err)
	}
	if room == nil {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}

	state, err := e.state.LoadRoomState(ctx, roomID)
	if err != nil {
		return storageErr("load room state", err)
	}
	queue, err := e.state.LoadQueue(ctx, roomID)
	if err != nil {
		return storageErr("load queue", err)
	}

	rs.room = *room
	if state != nil {
		rs.playback = *state
	} else {
		rs.playback = idlePlayback(nil, e.clock.Now())
	}
	rs.queue = queue
	rs.loaded = true
	return nil
}

func (e *Engine) buildSnapshot(rs *roomState, now time.Time) *model.RoomSnapshot {
	pb := rs.playback
	snap := &model.RoomSnapshot{
		RoomID:        rs.room.ID,
		Playback:      pb,
		OffsetMs:      effectiveOffsetMs(&pb, now),
		QueueHead:     queueHead(rs.queue),
		QueueLength:   len(rs.queue),
		GeneratedAtMs: now.UnixMilli(),
	}
	if len(rs.lastRanked) > 0 {
		snap.Suggestions = append([]model.RankedSuggestion(nil), rs.lastRanked...)
	}
	return snap
}

// appendHistory records a displaced play after the state save has committed.
// Append failures are logged and absorbed: history only feeds scoring, and a
// lost entry is preferable to a committed entry for an aborted mutation.
func (e *Engine) appendHistory(ctx context.Context, entry *model.PlayHistoryEntry) {
	if entry == nil {
		return
	}
	if err := e.history.AppendHistory(ctx, entry); err != nil {
		logger.Warn("failed to append play history",
			logger.String("roomId", entry.RoomID),
			logger.String("trackId", entry.TrackID),
			logger.ErrorField(err))
	}
}

// markPlayed updates catalog play bookkeeping outside any room scope.
func (e *Engine) markPlayed(ctx context.Context, trackID string, at time.Time) {
	if err := e.catalog.MarkPlayed(ctx, trackID, at); err != nil {
		logger.Warn("failed to mark track played",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
	}
}

// trackByID resolves a track outside any room scope.
func (e *Engine) trackByID(ctx context.Context, trackID string) (*model.Track, error) {
	track, err := e.catalog.TrackByID(ctx, trackID)
	if err != nil {
		return nil, storageErr("load track", err)
	}
	if track == nil {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	return track, nil
}

// ========== Playback ==========

// CurrentOffset returns the effective offset of the room's playing track at
// this instant. Reads of the same state never diverge beyond clock jitter.
func (e *Engine) CurrentOffset(ctx context.Context, roomID string) (int64, error) {
	var offset int64
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		offset = effectiveOffsetMs(&rs.playback, e.clock.Now())
		return nil
	})
	return offset, err
}

// Playback returns a consistent copy of the playback state plus the computed
// offset.
func (e *Engine) Playback(ctx context.Context, roomID string) (model.PlaybackState, int64, error) {
	var pb model.PlaybackState
	var offset int64
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		pb = rs.playback
		offset = effectiveOffsetMs(&pb, e.clock.Now())
		return nil
	})
	return pb, offset, err
}

// Snapshot returns the current room snapshot without mutating anything.
func (e *Engine) Snapshot(ctx context.Context, roomID string) (*model.RoomSnapshot, error) {
	var snap *model.RoomSnapshot
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		snap = e.buildSnapshot(rs, e.clock.Now())
		return nil
	})
	return snap, err
}

// SetTrack atomically replaces the room's playback state with the given track.
// The displaced track, if any, is appended to play history with its end
// timestamp. Fails with ErrInvalidTrack when the track does not belong to the
// room's artist.
func (e *Engine) SetTrack(ctx context.Context, roomID, trackID string, startingOffsetMs int64, paused bool, by string) (*model.RoomSnapshot, error) {
	track, err := e.trackByID(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if startingOffsetMs < 0 {
		startingOffsetMs = 0
	}

	var snap *model.RoomSnapshot
	var now time.Time
	trackChanged := false
	err = e.withRoom(ctx, roomID, func(rs *roomState) error {
		if track.ArtistID != rs.room.ArtistID {
			return fmt.Errorf("track %s in room %s: %w", trackID, roomID, ErrInvalidTrack)
		}

		now = e.clock.Now()
		trackChanged = rs.playback.TrackID != trackID
		next := startPlayback(&rs.playback, track, startingOffsetMs, paused, by, now)

		// State save first: an aborted swap must leave no history row behind.
		if err := e.state.SaveRoomState(ctx, roomID, &next); err != nil {
			return storageErr("save room state", err)
		}
		e.appendHistory(ctx, historyEntryFor(roomID, &rs.playback, now))

		rs.playback = next
		snap = e.buildSnapshot(rs, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Re-setting the playing track is a seek, not a new play.
	if trackChanged {
		e.markPlayed(ctx, trackID, now)
	}
	e.notifier.PublishSnapshot(roomID, snap)
	return snap, nil
}

// Pause freezes the effective offset at the moment of the call.
func (e *Engine) Pause(ctx context.Context, roomID string) (*model.RoomSnapshot, error) {
	return e.togglePause(ctx, roomID, true)
}

// Resume re-anchors the frozen offset and restarts the clock.
func (e *Engine) Resume(ctx context.Context, roomID string) (*model.RoomSnapshot, error) {
	return e.togglePause(ctx, roomID, false)
}

func (e *Engine) togglePause(ctx context.Context, roomID string, pause bool) (*model.RoomSnapshot, error) {
	var snap *model.RoomSnapshot
	changed := false
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		now := e.clock.Now()
		if rs.playback.Idle() || rs.playback.Paused == pause {
			snap = e.buildSnapshot(rs, now)
			return nil
		}

		var next model.PlaybackState
		if pause {
			next = pausePlayback(rs.playback, now)
		} else {
			next = resumePlayback(rs.playback, now)
		}
		if err := e.state.SaveRoomState(ctx, roomID, &next); err != nil {
			return storageErr("save room state", err)
		}

		rs.playback = next
		snap = e.buildSnapshot(rs, now)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		e.notifier.PublishSnapshot(roomID, snap)
	}
	return snap, nil
}

// AdvanceIfFinished moves the room to the next queue item when the playing
// track has reached its end, or to idle when the queue is empty. It runs under
// the same room scope as every other mutator, so two near-simultaneous calls
// can never both dequeue.
func (e *Engine) AdvanceIfFinished(ctx context.Context, roomID string) (bool, *model.RoomSnapshot, error) {
	var snap *model.RoomSnapshot
	advanced := false
	startedTrack := ""
	var now time.Time

	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		now = e.clock.Now()
		if !trackFinished(&rs.playback, now) {
			snap = e.buildSnapshot(rs, now)
			return nil
		}

		head, rest, ok := dequeueNext(rs.queue)
		var next model.PlaybackState
		if ok {
			track := &model.Track{ID: head.TrackID, Title: head.Title, DurationMs: head.TrackDurationMs}
			next = startPlayback(&rs.playback, track, 0, false, "", now)
		} else {
			next = idlePlayback(&rs.playback, now)
		}

		if ok {
			if err := e.state.SaveQueue(ctx, roomID, rest); err != nil {
				return storageErr("save queue", err)
			}
		}
		if err := e.state.SaveRoomState(ctx, roomID, &next); err != nil {
			if ok {
				// Compensate the queue write so storage does not drift from
				// the unchanged in-memory state.
				if restoreErr := e.state.SaveQueue(ctx, roomID, rs.queue); restoreErr != nil {
					logger.Warn("failed to restore queue after state save failure",
						logger.String("roomId", roomID),
						logger.ErrorField(restoreErr))
				}
			}
			return storageErr("save room state", err)
		}
		e.appendHistory(ctx, historyEntryFor(roomID, &rs.playback, now))

		if ok {
			rs.queue = rest
			startedTrack = head.TrackID
		}
		rs.playback = next
		advanced = true
		snap = e.buildSnapshot(rs, now)
		return nil
	})
	if err != nil {
		return false, nil, err
	}

	if startedTrack != "" {
		e.markPlayed(ctx, startedTrack, now)
	}
	if advanced {
		e.notifier.PublishSnapshot(roomID, snap)
	}
	return advanced, snap, nil
}

// Join registers a listener. The first listener of a paused room resumes
// playback.
func (e *Engine) Join(ctx context.Context, roomID, listenerID string) (*model.RoomSnapshot, error) {
	return e.adjustListeners(ctx, roomID, listenerID, +1)
}

// Leave deregisters a listener. Playback pauses when the last listener leaves.
func (e *Engine) Leave(ctx context.Context, roomID, listenerID string) (*model.RoomSnapshot, error) {
	return e.adjustListeners(ctx, roomID, listenerID, -1)
}

func (e *Engine) adjustListeners(ctx context.Context, roomID, listenerID string, delta int) (*model.RoomSnapshot, error) {
	var snap *model.RoomSnapshot
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		now := e.clock.Now()
		next := rs.playback
		next.Listeners += delta
		if next.Listeners < 0 {
			next.Listeners = 0
		}

		if !next.Idle() {
			switch {
			case delta > 0 && next.Paused:
				next = resumePlayback(next, now)
			case delta < 0 && next.Listeners == 0 && !next.Paused:
				next = pausePlayback(next, now)
			}
		}

		if err := e.state.SaveRoomState(ctx, roomID, &next); err != nil {
			return storageErr("save room state", err)
		}

		rs.playback = next
		snap = e.buildSnapshot(rs, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("listener count changed",
		logger.String("roomId", roomID),
		logger.String("listenerId", listenerID),
		logger.Int("listeners", snap.Playback.Listeners))
	e.notifier.PublishSnapshot(roomID, snap)
	return snap, nil
}

// ========== Queue ==========

// Enqueue appends a track request at the end of the room's queue.
func (e *Engine) Enqueue(ctx context.Context, roomID, trackID, note, requestedBy string) (model.QueueItem, error) {
	track, err := e.trackByID(ctx, trackID)
	if err != nil {
		return model.QueueItem{}, err
	}

	var item model.QueueItem
	var snap *model.RoomSnapshot
	err = e.withRoom(ctx, roomID, func(rs *roomState) error {
		if track.ArtistID != rs.room.ArtistID {
			return fmt.Errorf("track %s in room %s: %w", trackID, roomID, ErrInvalidTrack)
		}

		now := e.clock.Now()
		next := enqueueItem(rs.queue, roomID, track, note, requestedBy, now)
		if err := e.state.SaveQueue(ctx, roomID, next); err != nil {
			return storageErr("save queue", err)
		}

		rs.queue = next
		item = next[len(next)-1]
		snap = e.buildSnapshot(rs, now)
		return nil
	})
	if err != nil {
		return model.QueueItem{}, err
	}

	e.notifier.PublishSnapshot(roomID, snap)
	return item, nil
}

// DequeueNext removes and returns the queue head, or nil when the queue is
// empty.
func (e *Engine) DequeueNext(ctx context.Context, roomID string) (*model.QueueItem, error) {
	var popped *model.QueueItem
	var snap *model.RoomSnapshot
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		head, rest, ok := dequeueNext(rs.queue)
		if !ok {
			return nil
		}

		if err := e.state.SaveQueue(ctx, roomID, rest); err != nil {
			return storageErr("save queue", err)
		}

		rs.queue = rest
		popped = &head
		snap = e.buildSnapshot(rs, e.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if popped != nil {
		e.notifier.PublishSnapshot(roomID, snap)
	}
	return popped, nil
}

// RemoveQueueItem withdraws an arbitrary queue item by id.
func (e *Engine) RemoveQueueItem(ctx context.Context, roomID, itemID string) error {
	var snap *model.RoomSnapshot
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		rest, ok := removeItem(rs.queue, itemID)
		if !ok {
			return fmt.Errorf("queue item %s in room %s: %w", itemID, roomID, ErrNotFound)
		}

		if err := e.state.SaveQueue(ctx, roomID, rest); err != nil {
			return storageErr("save queue", err)
		}

		rs.queue = rest
		snap = e.buildSnapshot(rs, e.clock.Now())
		return nil
	})
	if err != nil {
		return err
	}

	e.notifier.PublishSnapshot(roomID, snap)
	return nil
}

// Queue returns an ordered read-only snapshot of the room's queue.
func (e *Engine) Queue(ctx context.Context, roomID string) ([]model.QueueItem, error) {
	var items []model.QueueItem
	err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		items = append([]model.QueueItem(nil), rs.queue...)
		return nil
	})
	return items, err
}

// SeedCatalog appends the room artist's full catalog to the queue in catalog
// order, skipping tracks already queued or played. Re-running is idempotent.
func (e *Engine) SeedCatalog(ctx context.Context, roomID string) (int, error) {
	var artistID string
	if err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		artistID = rs.room.ArtistID
		return nil
	}); err != nil {
		return 0, err
	}

	// Catalog reads happen outside the room scope.
	tracks, err := e.catalog.TracksByArtist(ctx, artistID)
	if err != nil {
		return 0, storageErr("load artist tracks", err)
	}

	added := 0
	var snap *model.RoomSnapshot
	err = e.withRoom(ctx, roomID, func(rs *roomState) error {
		hist, err := e.history.LoadRecentHistory(ctx, roomID, e.window)
		if err != nil {
			return storageErr("load history", err)
		}

		seen := make(map[string]bool, len(hist)+1)
		for i := range hist {
			seen[hist[i].TrackID] = true
		}
		if !rs.playback.Idle() {
			seen[rs.playback.TrackID] = true
		}

		now := e.clock.Now()
		next := seedItems(rs.queue, roomID, tracks, seen, now)
		added = len(next) - len(rs.queue)
		if added == 0 {
			return nil
		}

		if err := e.state.SaveQueue(ctx, roomID, next); err != nil {
			return storageErr("save queue", err)
		}

		rs.queue = next
		snap = e.buildSnapshot(rs, now)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if added > 0 {
		e.notifier.PublishSnapshot(roomID, snap)
	}
	return added, nil
}

// ========== Recommendations ==========

// Rank scores the room artist's unqueued tracks against recent history and
// returns the top k suggestions. It mutates nothing but remembers the output
// for Accept validation; abandoning the request has no side effects on room
// state.
func (e *Engine) Rank(ctx context.Context, roomID string, k int) ([]model.RankedSuggestion, error) {
	var artistID string
	exclude := make(map[string]bool)
	if err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		artistID = rs.room.ArtistID
		for i := range rs.queue {
			exclude[rs.queue[i].TrackID] = true
		}
		if !rs.playback.Idle() {
			exclude[rs.playback.TrackID] = true
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// History, catalog, and embedding reads happen outside the room scope.
	hist, err := e.history.LoadRecentHistory(ctx, roomID, e.window)
	if err != nil {
		return nil, storageErr("load history", err)
	}
	tracks, err := e.catalog.TracksByArtist(ctx, artistID)
	if err != nil {
		return nil, storageErr("load artist tracks", err)
	}

	candidates := make([]Candidate, 0, len(tracks))
	for i := range tracks {
		vec, err := e.embeddings.VectorByTrack(ctx, tracks[i].ID)
		if err != nil {
			return nil, storageErr("load embedding", err)
		}
		candidates = append(candidates, Candidate{Track: tracks[i], Vector: vec})
	}

	historyVectors := make(map[string]model.Vector, len(hist))
	for i := range hist {
		trackID := hist[i].TrackID
		if _, ok := historyVectors[trackID]; ok {
			continue
		}
		vec, err := e.embeddings.VectorByTrack(ctx, trackID)
		if err != nil {
			return nil, storageErr("load embedding", err)
		}
		if vec != nil {
			historyVectors[trackID] = vec
		}
	}

	ranked := e.scorer.Rank(RankInput{
		Candidates:     candidates,
		History:        hist,
		HistoryVectors: historyVectors,
		Exclude:        exclude,
		Now:            e.clock.Now(),
	}, k)

	if err := e.withRoom(ctx, roomID, func(rs *roomState) error {
		rs.suggested = make(map[string]bool, len(ranked))
		for i := range ranked {
			rs.suggested[ranked[i].TrackID] = true
		}
		rs.lastRanked = append([]model.RankedSuggestion(nil), ranked...)
		return nil
	}); err != nil {
		return nil, err
	}

	return ranked, nil
}

// Accept enqueues a track from the most recent ranked output. A track id that
// was not in that output fails with ErrNotASuggestion and leaves the queue
// untouched.
func (e *Engine) Accept(ctx context.Context, roomID, trackID, requestedBy string) (model.QueueItem, error) {
	track, err := e.trackByID(ctx, trackID)
	if err != nil {
		return model.QueueItem{}, err
	}

	var item model.QueueItem
	var snap *model.RoomSnapshot
	err = e.withRoom(ctx, roomID, func(rs *roomState) error {
		if !rs.suggested[trackID] {
			return fmt.Errorf("track %s in room %s: %w", trackID, roomID, ErrNotASuggestion)
		}
		// The suggestion is stale once someone has queued the track directly.
		for i := range rs.queue {
			if rs.queue[i].TrackID == trackID {
				return fmt.Errorf("track %s already queued in room %s: %w", trackID, roomID, ErrNotASuggestion)
			}
		}

		now := e.clock.Now()
		next := enqueueItem(rs.queue, roomID, track, "", requestedBy, now)
		if err := e.state.SaveQueue(ctx, roomID, next); err != nil {
			return storageErr("save queue", err)
		}

		rs.queue = next
		delete(rs.suggested, trackID)
		item = next[len(next)-1]
		snap = e.buildSnapshot(rs, now)
		return nil
	})
	if err != nil {
		return model.QueueItem{}, err
	}

	e.notifier.PublishSnapshot(roomID, snap)
	return item, nil
}

// ========== Catalog ingestion ==========

// IngestTrack upserts a catalog track, idempotent by id.
func (e *Engine) IngestTrack(ctx context.Context, track *model.Track) error {
	if track.ID == "" || track.ArtistID == "" {
		return fmt.Errorf("%w: track id and artist id are required", ErrInvalidConfiguration)
	}
	if track.DurationMs < 0 {
		return fmt.Errorf("%w: negative track duration %d", ErrInvalidConfiguration, track.DurationMs)
	}
	if err := e.catalog.UpsertTrack(ctx, track); err != nil {
		return storageErr("upsert track", err)
	}
	return nil
}

// IngestEmbedding upserts a track vector, enforcing the process-wide
// dimension.
func (e *Engine) IngestEmbedding(ctx context.Context, trackID string, vec model.Vector) error {
	if len(vec) != e.scorer.Dimension() {
		return fmt.Errorf("%w: embedding dimension %d, want %d", ErrInvalidConfiguration, len(vec), e.scorer.Dimension())
	}
	if err := e.embeddings.UpsertEmbedding(ctx, trackID, vec); err != nil {
		return storageErr("upsert embedding", err)
	}
	return nil
}
