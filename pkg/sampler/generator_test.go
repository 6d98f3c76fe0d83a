package sampler

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/checkpoint"
	"github.com/logflow/trackgen/pkg/cursor"
	"github.com/logflow/trackgen/pkg/distribution"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/store"
	"github.com/logflow/trackgen/pkg/store/memstore"
	"github.com/logflow/trackgen/pkg/store/sqlstore"
)

func sequence(t *testing.T, values ...float64) distribution.CountDistribution {
	t.Helper()
	seq, err := distribution.NewSequence(values...)
	require.NoError(t, err)
	return seq
}

// rolloverOpener builds sources A, B and C. A holds no qualifying particle,
// B holds exactly two (ids 20 and 22) and C holds three.
func rolloverOpener() *memstore.Opener {
	a := memstore.Dataset{}.
		With(10, model.Electron, 5).
		With(11, model.MuonMinus, 30).
		With(12, model.Electron, 19)
	b := memstore.Dataset{}.
		With(20, model.Electron, 20).
		With(21, model.Proton, 40).
		With(22, model.Electron, 25)
	c := memstore.Dataset{}.
		With(30, model.Electron, 21).
		With(31, model.Electron, 22).
		With(32, model.Electron, 23)

	return memstore.NewOpener().
		Add("A", a).
		Add("B", b).
		Add("C", c)
}

func newGenerator(t *testing.T, dist distribution.CountDistribution, opener store.Opener, opts ...Option) *Generator {
	t.Helper()
	g, err := New(context.Background(), Config{
		Distribution: dist,
		Sources:      []model.Source{"A", "B", "C"},
	}, opener, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestFilter_Boundaries(t *testing.T) {
	f := Filter{Threshold: DefaultHitCountThreshold, Species: DefaultTargetSpecies}

	tests := []struct {
		name     string
		species  model.Species
		hitCount int
		want     bool
	}{
		{"below threshold", model.Electron, 19, false},
		{"at threshold", model.Electron, 20, true},
		{"above threshold", model.Electron, 200, true},
		{"wrong species", model.Positron, 20, false},
		{"wrong species many hits", model.MuonMinus, 1000, false},
		{"no hits", model.Electron, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.Particle{ID: 1, Species: tt.species}
			require.Equal(t, tt.want, f.Qualifies(p, tt.hitCount))
		})
	}
}

func TestNewFilter_Defaults(t *testing.T) {
	require.Equal(t, Filter{Threshold: 20, Species: model.Electron}, NewFilter(0, 0))
	require.Equal(t, Filter{Threshold: 3, Species: model.MuonMinus}, NewFilter(3, model.MuonMinus))

	f := NewFilter(0, 0)
	require.False(t, f.Qualifies(model.Particle{ID: 1, Species: model.Electron}, 19))
	require.True(t, f.Qualifies(model.Particle{ID: 1, Species: model.Electron}, 20))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no distribution", Config{Sources: []model.Source{"A"}}},
		{"no sources", Config{Distribution: distribution.Constant(1)}},
		{"negative threshold", Config{Distribution: distribution.Constant(1), Sources: []model.Source{"A"}, HitCountThreshold: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg, memstore.NewOpener().Add("A", memstore.Dataset{}))
			require.ErrorIs(t, err, tgerrors.ErrConfiguration)
		})
	}
}

func TestGenerate_TrackLayout(t *testing.T) {
	g := newGenerator(t, distribution.Constant(4), rolloverOpener())

	sample, err := g.Generate(context.Background(), model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, Done, g.State())
	require.Equal(t, 4, sample.Target)
	require.Len(t, sample.Tracks, 4)

	wantHits := map[int64]int{20: 20, 22: 25, 30: 21, 31: 22}
	for pid, track := range sample.Tracks {
		require.Len(t, track, wantHits[pid]+1, "particle %d", pid)
		label, ok := track.Label()
		require.True(t, ok)
		require.Equal(t, model.Electron, label)

		ids := track.HitIDs()
		require.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }))
		require.Equal(t, pid*1000, ids[0])
	}
}

func TestGenerate_EvaluationHitSetMatchesTracks(t *testing.T) {
	g := newGenerator(t, distribution.Constant(3), rolloverOpener())

	sample, err := g.Generate(context.Background(), model.ModeEvaluation)
	require.NoError(t, err)

	fromTracks := sample.Tracks.HitIDSet()
	require.Len(t, sample.Hits, len(fromTracks))
	for id := range sample.Hits {
		_, ok := fromTracks[id]
		require.True(t, ok, "hit %d has no track", id)
	}
}

func TestGenerate_ZeroTargetMakesNoQueries(t *testing.T) {
	opener := rolloverOpener()
	g := newGenerator(t, distribution.Constant(0), opener)
	before := opener.Counters()

	sample, err := g.Generate(context.Background(), model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, 0, sample.Target)
	require.Empty(t, sample.Hits)
	require.Empty(t, sample.Tracks)
	require.Equal(t, before, opener.Counters())
	require.Equal(t, cursor.Position{}, g.Position())
}

func TestGenerate_RolloverInOrder(t *testing.T) {
	opener := rolloverOpener()
	var events []cursor.RolloverEvent
	g := newGenerator(t, sequence(t, 2, 1), opener, WithObserver(cursor.Funcs{
		Rollover: func(e cursor.RolloverEvent) { events = append(events, e) },
	}))
	ctx := context.Background()

	first, err := g.Generate(ctx, model.ModeEvaluation)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{20, 22}, first.Tracks.ParticleIDs())
	require.Equal(t, cursor.Position{SourceIndex: 1, Offset: 3}, g.Position())
	require.Equal(t, 0, opener.OpenCount("A"))
	require.Equal(t, 1, opener.OpenCount("B"))

	second, err := g.Generate(ctx, model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, []int64{30}, second.Tracks.ParticleIDs())
	require.Equal(t, 0, opener.OpenCount("B"))

	require.Len(t, events, 2)
	require.Equal(t, cursor.RolloverEvent{From: "A", To: "B", Index: 1}, events[0])
	require.Equal(t, cursor.RolloverEvent{From: "B", To: "C", Index: 2}, events[1])

	stats := g.Stats()
	require.Equal(t, int64(2), stats.Calls)
	require.Equal(t, int64(3), stats.Accepted)
	require.Equal(t, int64(4), stats.Rejected)
	require.Equal(t, 2, stats.Rollovers)
}

func TestGenerate_NoParticleReused(t *testing.T) {
	g := newGenerator(t, distribution.Constant(1), rolloverOpener())
	ctx := context.Background()

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		sample, err := g.Generate(ctx, model.ModeEvaluation)
		require.NoError(t, err)
		for _, pid := range sample.Tracks.ParticleIDs() {
			require.False(t, seen[pid], "particle %d sampled twice", pid)
			seen[pid] = true
		}
	}
	require.Len(t, seen, 5)
}

func TestGenerate_ExhaustionIsFatal(t *testing.T) {
	opener := rolloverOpener()
	g := newGenerator(t, distribution.Constant(6), opener)
	ctx := context.Background()

	_, err := g.Generate(ctx, model.ModeEvaluation)
	require.ErrorIs(t, err, tgerrors.ErrSourcesExhausted)
	require.True(t, tgerrors.IsFatal(err))
	require.Equal(t, Failed, g.State())
	require.Equal(t, 0, opener.OpenCount("C"))

	_, err = g.Generate(ctx, model.ModeTraining)
	require.ErrorIs(t, err, tgerrors.ErrSourcesExhausted)
}

func TestGenerate_TrainingMatchesEvaluation(t *testing.T) {
	ctx := context.Background()
	eval := newGenerator(t, sequence(t, 1, 3), rolloverOpener())
	train := newGenerator(t, sequence(t, 1, 3), rolloverOpener())

	for i := 0; i < 2; i++ {
		e, err := eval.Generate(ctx, model.ModeEvaluation)
		require.NoError(t, err)
		tr, err := train.Generate(ctx, model.ModeTraining)
		require.NoError(t, err)

		require.Nil(t, tr.Tracks)
		require.NotNil(t, e.Tracks)
		require.Equal(t, e.Hits, tr.Hits)
		require.Equal(t, eval.Position(), train.Position())
	}
}

func TestGenerate_InvalidDistributionOutput(t *testing.T) {
	for _, v := range []float64{-1, 2.5, math.NaN(), math.Inf(1)} {
		t.Run(fmt.Sprint(v), func(t *testing.T) {
			opener := rolloverOpener()
			g := newGenerator(t, distribution.Constant(v), opener)
			before := opener.Counters()

			sample, err := g.Generate(context.Background(), model.ModeEvaluation)
			require.Nil(t, sample)
			require.ErrorIs(t, err, tgerrors.ErrInvalidDistributionOutput)
			require.Equal(t, Failed, g.State())
			require.Equal(t, before, opener.Counters())
		})
	}
}

// miscountingStore reports one more hit than it lists.
type miscountingStore struct {
	store.RecordStore
}

func (s miscountingStore) HitCount(ctx context.Context, id int64) (int, error) {
	n, err := s.RecordStore.HitCount(ctx, id)
	return n + 1, err
}

func TestGenerate_HitCountMismatch(t *testing.T) {
	inner := rolloverOpener()
	opener := store.OpenerFunc(func(ctx context.Context, src model.Source) (store.RecordStore, error) {
		st, err := inner.Open(ctx, src)
		if err != nil {
			return nil, err
		}
		return miscountingStore{st}, nil
	})
	g := newGenerator(t, distribution.Constant(1), opener)

	_, err := g.Generate(context.Background(), model.ModeEvaluation)
	require.True(t, tgerrors.IsCode(err, tgerrors.CodeStoreQuery))
	require.Equal(t, Failed, g.State())
}

func TestGenerate_LogsRollover(t *testing.T) {
	var buf bytes.Buffer
	g := newGenerator(t, distribution.Constant(1), rolloverOpener(), WithLogger(log.New(&buf, "", 0)))

	_, err := g.Generate(context.Background(), model.ModeTraining)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "INFO: Run out of particles in A")
	require.Contains(t, buf.String(), "INFO: Connecting to the next track database B")
}

func TestGenerate_IDCollisionAcrossRollover(t *testing.T) {
	opener := memstore.NewOpener().
		Add("A", memstore.Dataset{}.With(1, model.Electron, 21)).
		Add("B", memstore.Dataset{}.With(1, model.Electron, 21))

	var buf bytes.Buffer
	g, err := New(context.Background(), Config{
		Distribution: distribution.Constant(2),
		Sources:      []model.Source{"A", "B"},
	}, opener, WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	sample, err := g.Generate(context.Background(), model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, 2, sample.Target)
	require.Len(t, sample.Tracks, 1)
	require.Len(t, sample.Hits, 21)

	stats := g.Stats()
	require.Equal(t, int64(2), stats.Accepted)
	require.Equal(t, int64(1), stats.Collisions)
	require.Contains(t, buf.String(), "WARN: Particle 1 from B replaces a track")
}

func TestGenerate_CheckpointResume(t *testing.T) {
	ctx := context.Background()
	backend, err := checkpoint.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	first := newGenerator(t, distribution.Constant(1), rolloverOpener(), WithCheckpoint(backend, "run"))
	s1, err := first.Generate(ctx, model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, []int64{20}, s1.Tracks.ParticleIDs())
	require.NoError(t, first.Close())

	cp, err := backend.Load(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, cursor.Position{SourceIndex: 1, Offset: 1}, cp.Position)
	require.Equal(t, int64(1), cp.Accepted)

	second := newGenerator(t, distribution.Constant(1), rolloverOpener(), WithCheckpoint(backend, "run"))
	s2, err := second.Generate(ctx, model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, []int64{22}, s2.Tracks.ParticleIDs())
	require.Equal(t, int64(2), second.Stats().Calls)
	require.Equal(t, "run", second.CheckpointID())
}

func TestGenerate_CheckpointSourceMismatch(t *testing.T) {
	ctx := context.Background()
	backend, err := checkpoint.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, backend.Save(ctx, checkpoint.New("run", []model.Source{"A", "C"})))

	_, err = New(ctx, Config{
		Distribution: distribution.Constant(1),
		Sources:      []model.Source{"A", "B", "C"},
	}, rolloverOpener(), WithCheckpoint(backend, "run"))
	require.ErrorIs(t, err, tgerrors.ErrConfiguration)
}

func TestGenerate_WithResume(t *testing.T) {
	g := newGenerator(t, distribution.Constant(1), rolloverOpener(),
		WithResume(cursor.Position{SourceIndex: 2, Offset: 1}))

	sample, err := g.Generate(context.Background(), model.ModeEvaluation)
	require.NoError(t, err)
	require.Equal(t, []int64{31}, sample.Tracks.ParticleIDs())
}

// writeSQLiteSource creates a sqlite source in the simulation layout with the
// given particles, each carrying n hits.
func writeSQLiteSource(t *testing.T, name string, particles map[int64]model.Species, hits map[int64]int) model.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE Particle (id INTEGER PRIMARY KEY, pdgId INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE StrawDigiMC (id INTEGER PRIMARY KEY, particle INTEGER NOT NULL, x REAL, y REAL, z REAL)`)
	require.NoError(t, err)

	for id, sp := range particles {
		_, err := db.Exec(`INSERT INTO Particle (id, pdgId) VALUES (?, ?)`, id, int64(sp))
		require.NoError(t, err)
		for i := 0; i < hits[id]; i++ {
			hid := id*100 + int64(i)
			_, err := db.Exec(`INSERT INTO StrawDigiMC (id, particle, x, y, z) VALUES (?, ?, ?, ?, ?)`,
				hid, id, float64(i), float64(i)*2, float64(i)*3)
			require.NoError(t, err)
		}
	}
	return model.Source(path)
}

func TestGenerate_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	a := writeSQLiteSource(t, "a.db",
		map[int64]model.Species{1: model.Electron, 2: model.MuonMinus},
		map[int64]int{1: 2, 2: 5})
	b := writeSQLiteSource(t, "b.db",
		map[int64]model.Species{1: model.Electron, 2: model.Electron},
		map[int64]int{1: 4, 2: 3})

	opener, err := sqlstore.NewOpener(sqlstore.Options{Driver: sqlstore.DriverSQLite})
	require.NoError(t, err)

	g, err := New(ctx, Config{
		Distribution:      distribution.Constant(2),
		Sources:           []model.Source{a, b},
		HitCountThreshold: 3,
	}, opener)
	require.NoError(t, err)
	defer g.Close()

	sample, err := g.Generate(ctx, model.ModeEvaluation)
	require.NoError(t, err)
	require.Len(t, sample.Tracks, 2)
	require.Equal(t, model.Track{100, 101, 102, 103, 11}, sample.Tracks[1])
	require.Equal(t, model.Track{200, 201, 202, 11}, sample.Tracks[2])
	require.Len(t, sample.Hits, 7)
	require.Equal(t, model.Point{X: 1, Y: 2, Z: 3}, sample.Hits[101])
	require.Equal(t, 1, g.Stats().Rollovers)

	_, err = g.Generate(ctx, model.ModeEvaluation)
	require.ErrorIs(t, err, tgerrors.ErrSourcesExhausted)
}
