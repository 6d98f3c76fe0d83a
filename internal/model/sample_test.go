package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
	}{
		{"evaluation", ModeEvaluation},
		{"eval", ModeEvaluation},
		{"EVAL", ModeEvaluation},
		{"training", ModeTraining},
		{"", ModeTraining},
		{"inference", Mode("inference")},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, ParseMode(tt.input), "input %q", tt.input)
	}

	require.True(t, ModeEvaluation.WantsTracks())
	require.False(t, ModeTraining.WantsTracks())
	require.False(t, Mode("inference").WantsTracks())
}

func TestTrack_LabelAndHitIDs(t *testing.T) {
	track := NewTrack(3)
	track = append(track, 7, 8, 9, int64(Electron))

	require.Equal(t, []int64{7, 8, 9}, track.HitIDs())
	label, ok := track.Label()
	require.True(t, ok)
	require.Equal(t, Electron, label)

	_, ok = Track(nil).Label()
	require.False(t, ok)
	require.Nil(t, Track(nil).HitIDs())
}

func TestTrackTable_HitIDSet(t *testing.T) {
	tracks := TrackTable{
		1: {100, 101, int64(Electron)},
		2: {200, int64(Electron)},
	}

	set := tracks.HitIDSet()
	require.Len(t, set, 3)
	for _, id := range []int64{100, 101, 200} {
		require.Contains(t, set, id)
	}
	// The label must never leak into the hit id set.
	require.NotContains(t, set, int64(Electron))
	require.Equal(t, []int64{1, 2}, tracks.ParticleIDs())
}

func TestSpecies_String(t *testing.T) {
	require.Equal(t, "e-", Electron.String())
	require.Equal(t, "pdg(22)", Species(22).String())
}
