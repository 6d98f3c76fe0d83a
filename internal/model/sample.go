package model

import (
	"sort"
	"strings"
)

// HitTable maps hit id to coordinates. Entries are only added for hits of
// accepted particles.
type HitTable map[int64]Point

// IDs returns the hit ids in ascending order.
func (t HitTable) IDs() []int64 {
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Track holds the hit ids of one particle in store order, followed by the
// particle's species code as the final element.
type Track []int64

// NewTrack allocates a track with room for n hits and the label.
func NewTrack(n int) Track {
	return make(Track, 0, n+1)
}

// HitIDs returns the hit ids without the trailing label.
func (t Track) HitIDs() []int64 {
	if len(t) == 0 {
		return nil
	}
	return t[:len(t)-1]
}

// Label returns the trailing species code. It returns false for an empty track.
func (t Track) Label() (Species, bool) {
	if len(t) == 0 {
		return 0, false
	}
	return Species(t[len(t)-1]), true
}

// TrackTable maps particle id to its track.
type TrackTable map[int64]Track

// ParticleIDs returns the particle ids in ascending order.
func (t TrackTable) ParticleIDs() []int64 {
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HitIDSet returns the set of hit ids referenced by all tracks.
func (t TrackTable) HitIDSet() map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, track := range t {
		for _, id := range track.HitIDs() {
			set[id] = struct{}{}
		}
	}
	return set
}

// Mode selects the output shape of a generation call.
type Mode string

const (
	// ModeEvaluation returns both the hit table and the track table.
	ModeEvaluation Mode = "evaluation"
	// ModeTraining returns only the hit table. Any mode other than
	// ModeEvaluation behaves the same way.
	ModeTraining Mode = "training"
)

// ParseMode parses a mode name. "eval" is accepted as an alias of evaluation;
// every other value is passed through unchanged.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "evaluation", "eval":
		return ModeEvaluation
	case "", "training", "train":
		return ModeTraining
	default:
		return Mode(s)
	}
}

// WantsTracks reports whether the mode returns the track table.
func (m Mode) WantsTracks() bool {
	return m == ModeEvaluation
}
