package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"RoomFM/model"
)

// fakeClock is a settable clock for deterministic offset math.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errStoreDown = errors.New("store down")

// fakeStateStore is an in-memory state store with a failure switch.
type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]*model.PlaybackState
	queues map[string][]model.QueueItem
	fail   bool
	// failSaveState fails only SaveRoomState, leaving queue writes working.
	failSaveState bool

	saveStateCalls int
	saveQueueCalls int
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		states: make(map[string]*model.PlaybackState),
		queues: make(map[string][]model.QueueItem),
	}
}

func (s *fakeStateStore) LoadRoomState(ctx context.Context, roomID string) (*model.PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	state, ok := s.states[roomID]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (s *fakeStateStore) SaveRoomState(ctx context.Context, roomID string, state *model.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStateCalls++
	if s.fail || s.failSaveState {
		return errStoreDown
	}
	cp := *state
	s.states[roomID] = &cp
	return nil
}

func (s *fakeStateStore) LoadQueue(ctx context.Context, roomID string) ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	return append([]model.QueueItem(nil), s.queues[roomID]...), nil
}

func (s *fakeStateStore) SaveQueue(ctx context.Context, roomID string, items []model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveQueueCalls++
	if s.fail {
		return errStoreDown
	}
	s.queues[roomID] = append([]model.QueueItem(nil), items...)
	return nil
}

// fakeHistoryStore keeps history in memory, newest appended last.
type fakeHistoryStore struct {
	mu      sync.Mutex
	entries map[string][]model.PlayHistoryEntry
	fail    bool
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{entries: make(map[string][]model.PlayHistoryEntry)}
}

func (s *fakeHistoryStore) AppendHistory(ctx context.Context, entry *model.PlayHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.entries[entry.RoomID] = append(s.entries[entry.RoomID], *entry)
	return nil
}

func (s *fakeHistoryStore) LoadRecentHistory(ctx context.Context, roomID string, window HistoryWindow) ([]model.PlayHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	all := s.entries[roomID]
	if len(all) > window.MaxEntries {
		all = all[len(all)-window.MaxEntries:]
	}
	return append([]model.PlayHistoryEntry(nil), all...), nil
}

// fakeCatalog holds tracks keyed by id.
type fakeCatalog struct {
	mu       sync.Mutex
	tracks   map[string]model.Track
	order    []string
	played   map[string]int
	failMark bool
}

func newFakeCatalog(tracks ...model.Track) *fakeCatalog {
	c := &fakeCatalog{
		tracks: make(map[string]model.Track),
		played: make(map[string]int),
	}
	for _, track := range tracks {
		c.tracks[track.ID] = track
		c.order = append(c.order, track.ID)
	}
	return c
}

func (c *fakeCatalog) TrackByID(ctx context.Context, id string) (*model.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	track, ok := c.tracks[id]
	if !ok {
		return nil, nil
	}
	cp := track
	return &cp, nil
}

func (c *fakeCatalog) TracksByArtist(ctx context.Context, artistID string) ([]model.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Track
	for _, id := range c.order {
		if c.tracks[id].ArtistID == artistID {
			out = append(out, c.tracks[id])
		}
	}
	return out, nil
}

func (c *fakeCatalog) UpsertTrack(ctx context.Context, track *model.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracks[track.ID]; !ok {
		c.order = append(c.order, track.ID)
	}
	c.tracks[track.ID] = *track
	return nil
}

func (c *fakeCatalog) MarkPlayed(ctx context.Context, trackID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failMark {
		return errStoreDown
	}
	c.played[trackID]++
	return nil
}

// fakeEmbeddingStore holds vectors keyed by track id.
type fakeEmbeddingStore struct {
	mu      sync.Mutex
	vectors map[string]model.Vector
}

func newFakeEmbeddingStore() *fakeEmbeddingStore {
	return &fakeEmbeddingStore{vectors: make(map[string]model.Vector)}
}

func (s *fakeEmbeddingStore) VectorByTrack(ctx context.Context, trackID string) (model.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.vectors[trackID]
	if !ok {
		return nil, nil
	}
	return append(model.Vector(nil), vec...), nil
}

func (s *fakeEmbeddingStore) UpsertEmbedding(ctx context.Context, trackID string, vec model.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[trackID] = append(model.Vector(nil), vec...)
	return nil
}

// fakeRoomDirectory resolves rooms from a map.
type fakeRoomDirectory struct {
	rooms map[string]model.Room
}

func newFakeRoomDirectory(rooms ...model.Room) *fakeRoomDirectory {
	d := &fakeRoomDirectory{rooms: make(map[string]model.Room)}
	for _, rm := range rooms {
		d.rooms[rm.ID] = rm
	}
	return d
}

func (d *fakeRoomDirectory) RoomByID(ctx context.Context, id string) (*model.Room, error) {
	rm, ok := d.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := rm
	return &cp, nil
}

// recordingNotifier captures emitted snapshots.
type recordingNotifier struct {
	mu    sync.Mutex
	snaps []*model.RoomSnapshot
}

func (n *recordingNotifier) PublishSnapshot(roomID string, snap *model.RoomSnapshot) {
	n.mu.Lock()
	n.snaps = append(n.snaps, snap)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.snaps)
}

func (n *recordingNotifier) last() *model.RoomSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.snaps) == 0 {
		return nil
	}
	return n.snaps[len(n.snaps)-1]
}

// testDeps is a fully wired fake environment around one room.
type testDeps struct {
	clock      *fakeClock
	state      *fakeStateStore
	history    *fakeHistoryStore
	catalog    *fakeCatalog
	embeddings *fakeEmbeddingStore
	rooms      *fakeRoomDirectory
	notifier   *recordingNotifier
	scorer     *Scorer
	eng        *Engine
}

func defaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights:      Weights{Alpha: 0.6, Beta: 0.25, Gamma: 0.15},
		NoveltyDecay: 2 * time.Hour,
		FatigueScale: 2.0,
		EmbeddingDim: 3,
	}
}

func newTestDeps(t testingT, tracks ...model.Track) *testDeps {
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	state := newFakeStateStore()
	history := newFakeHistoryStore()
	catalog := newFakeCatalog(tracks...)
	embeddings := newFakeEmbeddingStore()
	rooms := newFakeRoomDirectory(model.Room{ID: "room-1", ArtistID: "artist-1", Name: "Test Room"})
	notifier := &recordingNotifier{}

	scorer, err := NewScorer(defaultScorerConfig())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	eng, err := New(Deps{
		Clock:      clock,
		State:      state,
		History:    history,
		Catalog:    catalog,
		Embeddings: embeddings,
		Rooms:      rooms,
		Notifier:   notifier,
		Scorer:     scorer,
		Window:     HistoryWindow{MaxEntries: 25, MaxAge: 6 * time.Hour},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &testDeps{
		clock:      clock,
		state:      state,
		history:    history,
		catalog:    catalog,
		embeddings: embeddings,
		rooms:      rooms,
		notifier:   notifier,
		scorer:     scorer,
		eng:        eng,
	}
}

// testingT is the subset of *testing.T the helpers need.
type testingT interface {
	Fatalf(format string, args ...interface{})
}
