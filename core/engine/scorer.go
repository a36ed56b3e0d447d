package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"RoomFM/model"
)

// Weights are the non-negative scoring weights:
// score = Alpha*similarity + Beta*novelty - Gamma*fatigue.
type Weights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// ScorerConfig carries the ranking tunables, validated once at startup.
type ScorerConfig struct {
	Weights Weights

	// NoveltyDecay is the time constant of the recency curve: a track played
	// NoveltyDecay ago has recovered about 63% of its novelty.
	NoveltyDecay time.Duration

	// FatigueScale is the repeat count at which fatigue reaches 0.5.
	FatigueScale float64

	// EmbeddingDim is the fixed process-wide vector dimension.
	EmbeddingDim int
}

func (c ScorerConfig) validate() error {
	if c.Weights.Alpha < 0 || c.Weights.Beta < 0 || c.Weights.Gamma < 0 {
		return fmt.Errorf("%w: negative weight alpha=%v beta=%v gamma=%v",
			ErrInvalidConfiguration, c.Weights.Alpha, c.Weights.Beta, c.Weights.Gamma)
	}
	if c.NoveltyDecay <= 0 {
		return fmt.Errorf("%w: novelty decay must be positive, got %v", ErrInvalidConfiguration, c.NoveltyDecay)
	}
	if c.FatigueScale <= 0 {
		return fmt.Errorf("%w: fatigue scale must be positive, got %v", ErrInvalidConfiguration, c.FatigueScale)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrInvalidConfiguration, c.EmbeddingDim)
	}
	return nil
}

// Scorer ranks candidate tracks from room history and embeddings. Ranking is a
// pure computation; the only mutable state is the weight set, which may be
// swapped at runtime.
type Scorer struct {
	mu  sync.RWMutex
	cfg ScorerConfig
}

// NewScorer validates the config and returns a scorer.
func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// SetWeights replaces the scoring weights. Negative weights are rejected.
func (s *Scorer) SetWeights(w Weights) error {
	if w.Alpha < 0 || w.Beta < 0 || w.Gamma < 0 {
		return fmt.Errorf("%w: negative weight alpha=%v beta=%v gamma=%v",
			ErrInvalidConfiguration, w.Alpha, w.Beta, w.Gamma)
	}
	s.mu.Lock()
	s.cfg.Weights = w
	s.mu.Unlock()
	return nil
}

// Weights returns the current scoring weights.
func (s *Scorer) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Weights
}

// Dimension returns the fixed embedding dimension.
func (s *Scorer) Dimension() int {
	return s.cfg.EmbeddingDim
}

// Candidate pairs a track with its embedding vector (nil when not ingested).
type Candidate struct {
	Track  model.Track
	Vector model.Vector
}

// RankInput is everything a ranking needs, gathered by the caller so the
// computation itself touches no shared state.
type RankInput struct {
	Candidates     []Candidate
	History        []model.PlayHistoryEntry
	HistoryVectors map[string]model.Vector
	Exclude        map[string]bool // active queue plus currently playing track
	Now            time.Time
}

// Rank scores every non-excluded candidate and returns the top k, ordered by
// score descending with ties broken by track id ascending. Identical inputs
// yield identical output.
func (s *Scorer) Rank(in RankInput, k int) []model.RankedSuggestion {
	if k <= 0 {
		return nil
	}

	s.mu.RLock()
	w := s.cfg.Weights
	decay := s.cfg.NoveltyDecay
	fatigueScale := s.cfg.FatigueScale
	s.mu.RUnlock()

	taste := tasteVector(in.History, in.HistoryVectors)
	plays, lastPlayed := historyCounts(in.History)

	out := make([]model.RankedSuggestion, 0, len(in.Candidates))
	for i := range in.Candidates {
		cand := &in.Candidates[i]
		if in.Exclude[cand.Track.ID] {
			continue
		}

		similarity := Cosine(taste, cand.Vector)
		novelty := noveltyScore(plays[cand.Track.ID], lastPlayed[cand.Track.ID], in.Now, decay)
		fatigue := fatigueScore(plays[cand.Track.ID], fatigueScale)

		score := w.Alpha*similarity + w.Beta*novelty - w.Gamma*fatigue
		out = append(out, model.RankedSuggestion{
			TrackID: cand.Track.ID,
			Title:   cand.Track.Title,
			Score:   score,
			Breakdown: map[string]float64{
				"similarity": round4(w.Alpha * similarity),
				"novelty":    round4(w.Beta * novelty),
				"fatigue":    round4(w.Gamma * fatigue),
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TrackID < out[j].TrackID
	})

	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Cosine is the cosine similarity of two vectors, 0 when either has zero norm
// or the dimensions disagree.
func Cosine(a, b model.Vector) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tasteVector is the mean embedding of the history window's plays. Nil when no
// play has a vector, which makes similarity contribute 0 for every candidate.
func tasteVector(history []model.PlayHistoryEntry, vectors map[string]model.Vector) model.Vector {
	var sum model.Vector
	count := 0
	for i := range history {
		vec, ok := vectors[history[i].TrackID]
		if !ok || len(vec) == 0 {
			continue
		}
		if sum == nil {
			sum = make(model.Vector, len(vec))
		}
		if len(vec) != len(sum) {
			continue
		}
		for j := range vec {
			sum[j] += vec[j]
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for j := range sum {
		sum[j] /= float64(count)
	}
	return sum
}

// historyCounts derives per-track repeat counts and most recent play instants
// from the window.
func historyCounts(history []model.PlayHistoryEntry) (plays map[string]int, lastPlayed map[string]time.Time) {
	plays = make(map[string]int, len(history))
	lastPlayed = make(map[string]time.Time, len(history))
	for i := range history {
		entry := &history[i]
		plays[entry.TrackID]++
		if entry.StartedAt.After(lastPlayed[entry.TrackID]) {
			lastPlayed[entry.TrackID] = entry.StartedAt
		}
	}
	return plays, lastPlayed
}

// noveltyScore is 1.0 for a track never played in the window and otherwise
// recency/(1+plays), where recency = 1-exp(-age/decay). Monotone: more recent
// or more repeated plays always score lower. Bounded to [0,1].
func noveltyScore(plays int, lastPlayed time.Time, now time.Time, decay time.Duration) float64 {
	if plays == 0 {
		return 1.0
	}
	age := now.Sub(lastPlayed)
	if age < 0 {
		age = 0
	}
	recency := 1 - math.Exp(-float64(age)/float64(decay))
	return recency / float64(1+plays)
}

// fatigueScore is plays/(plays+scale): 0 for an unplayed track, monotone
// increasing in repeat count, bounded to [0,1].
func fatigueScore(plays int, scale float64) float64 {
	if plays <= 0 {
		return 0
	}
	return float64(plays) / (float64(plays) + scale)
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
