// Package sampler draws random-sized samples of qualifying particle tracks
// from an ordered list of sources.
//
// Each call to Generate draws a target count from a distribution and then pulls
// particles from a cursor until that many particles pass the filter. The cursor
// keeps its place between calls, so consecutive samples never reuse a particle.
package sampler

import (
	"context"
	"errors"
	"log"
	"math"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/checkpoint"
	"github.com/logflow/trackgen/pkg/cursor"
	"github.com/logflow/trackgen/pkg/distribution"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/store"
)

// State is the phase of a Generate call.
type State int

const (
	AwaitingTarget State = iota
	Sampling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingTarget:
		return "awaiting_target"
	case Sampling:
		return "sampling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the generator settings.
type Config struct {
	Distribution distribution.CountDistribution
	Sources      []model.Source

	// HitCountThreshold defaults to DefaultHitCountThreshold when zero.
	HitCountThreshold int

	// TargetSpecies defaults to DefaultTargetSpecies when zero.
	TargetSpecies model.Species
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Distribution == nil {
		return tgerrors.Configuration("count distribution is required")
	}
	if len(c.Sources) == 0 {
		return tgerrors.Configuration("at least one source is required")
	}
	if c.HitCountThreshold < 0 {
		return tgerrors.Configuration("hit count threshold must not be negative, got %d", c.HitCountThreshold)
	}
	return nil
}

func (c Config) withDefaults() Config {
	f := NewFilter(c.HitCountThreshold, c.TargetSpecies)
	c.HitCountThreshold = f.Threshold
	c.TargetSpecies = f.Species
	return c
}

// Sample is the result of one Generate call.
type Sample struct {
	Target int
	Hits   model.HitTable

	// Tracks is nil unless the sample was generated in evaluation mode.
	Tracks model.TrackTable
}

// Stats are cumulative counters over the generator's lifetime. They carry
// over from a resumed checkpoint.
type Stats struct {
	Calls     int64
	Accepted  int64
	Rejected  int64
	Rollovers int

	// Collisions counts accepted particles whose id was already in the
	// sample being built.
	Collisions int64
}

// Generator assembles samples. It is not safe for concurrent use.
type Generator struct {
	cfg    Config
	filter Filter
	cursor *cursor.Cursor

	state State
	stats Stats

	observers cursor.Observers
	logger    *log.Logger
	tracer    trace.Tracer
	span      trace.Span

	backend      checkpoint.Backend
	checkpointID string
	checkpoint   *checkpoint.Checkpoint
	resume       *cursor.Position
}

// New validates cfg and opens the first source (or the resumed one).
func New(ctx context.Context, cfg Config, opener store.Opener, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	g := &Generator{
		cfg:    cfg,
		filter: Filter{Threshold: cfg.HitCountThreshold, Species: cfg.TargetSpecies},
		tracer: noop.NewTracerProvider().Tracer("trackgen"),
	}
	for _, opt := range opts {
		opt(g)
	}

	start, err := g.startPosition(ctx)
	if err != nil {
		return nil, err
	}

	cursorOpts := []cursor.Option{
		cursor.WithStart(start),
		cursor.WithObserver(spanObserver{g: g}),
	}
	for _, o := range g.observers {
		cursorOpts = append(cursorOpts, cursor.WithObserver(o))
	}

	c, err := cursor.Open(ctx, cfg.Sources, opener, cursorOpts...)
	if err != nil {
		return nil, err
	}
	g.cursor = c
	return g, nil
}

// startPosition works out where the cursor begins: an explicit resume
// position, a stored checkpoint, or the start of the first source.
func (g *Generator) startPosition(ctx context.Context) (cursor.Position, error) {
	if g.backend != nil {
		cp, err := g.backend.Load(ctx, g.checkpointIDOrNew())
		switch {
		case err == nil:
			if err := cp.Matches(g.cfg.Sources); err != nil {
				return cursor.Position{}, err
			}
			g.checkpoint = cp
			g.stats.Calls = cp.Calls
			g.stats.Accepted = cp.Accepted
			if g.logger != nil {
				g.logger.Printf("INFO: Resuming checkpoint %s at source %d offset %d",
					cp.ID, cp.Position.SourceIndex, cp.Position.Offset)
			}
		case errors.Is(err, os.ErrNotExist):
			g.checkpoint = checkpoint.New(g.checkpointID, g.cfg.Sources)
		default:
			return cursor.Position{}, tgerrors.Wrap(err, tgerrors.CodeCheckpoint, "failed to load checkpoint").
				WithContext("backend", g.backend.Name()).
				WithContext("id", g.checkpointID)
		}
	}

	if g.resume != nil {
		return *g.resume, nil
	}
	if g.checkpoint != nil {
		return g.checkpoint.Position, nil
	}
	return cursor.Position{}, nil
}

func (g *Generator) checkpointIDOrNew() string {
	if g.checkpointID == "" {
		g.checkpointID = checkpoint.NewID()
	}
	return g.checkpointID
}

// Generate draws a target count and collects that many qualifying particles.
//
// In evaluation mode the sample also carries the track table. A sample is
// returned together with an error only when the sample itself is complete and
// saving the checkpoint failed (code E401).
func (g *Generator) Generate(ctx context.Context, mode model.Mode) (*Sample, error) {
	ctx, span := g.tracer.Start(ctx, "sampler.Generate",
		trace.WithAttributes(attribute.String("mode", string(mode))))
	defer span.End()
	g.span = span
	defer func() { g.span = nil }()

	g.stats.Calls++
	g.state = AwaitingTarget

	target, err := g.drawTarget()
	if err != nil {
		return nil, g.fail(err)
	}
	span.SetAttributes(attribute.Int("target", target))

	hits := make(model.HitTable)
	tracks := make(model.TrackTable, min(target, 1024))

	if target > 0 {
		g.state = Sampling
		if err := g.collect(ctx, target, hits, tracks); err != nil {
			return nil, g.fail(err)
		}
	}
	g.state = Done

	sample := &Sample{Target: target, Hits: hits}
	if mode.WantsTracks() {
		sample.Tracks = tracks
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))

	if err := g.saveCheckpoint(ctx); err != nil {
		span.RecordError(err)
		return sample, err
	}
	return sample, nil
}

// drawTarget samples the distribution and rejects values that are not
// non-negative integers.
func (g *Generator) drawTarget() (int, error) {
	v := g.cfg.Distribution.Sample()
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, tgerrors.InvalidDistributionOutput(v)
	}
	return int(v), nil
}

func (g *Generator) collect(ctx context.Context, target int, hits model.HitTable, tracks model.TrackTable) error {
	accepted := 0
	for accepted < target {
		p, err := g.cursor.Next(ctx)
		if err != nil {
			return err
		}

		track, ok, err := g.consider(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			g.stats.Rejected++
			continue
		}

		if _, dup := tracks[p.ID]; dup {
			g.collision(p.ID)
		}
		for _, h := range track.hits {
			hits[h.ID] = h.Point()
		}
		tracks[p.ID] = track.ids
		accepted++
		g.stats.Accepted++
	}
	return nil
}

type candidate struct {
	hits []model.Hit
	ids  model.Track
}

// consider queries the current store for p and builds its track if p passes
// the filter.
func (g *Generator) consider(ctx context.Context, p model.Particle) (candidate, bool, error) {
	st := g.cursor.Store()

	n, err := st.HitCount(ctx, p.ID)
	if err != nil {
		return candidate{}, false, storeErr("hit_count", p.ID, err)
	}
	if !g.filter.Qualifies(p, n) {
		return candidate{}, false, nil
	}

	hits, err := st.Hits(ctx, p.ID)
	if err != nil {
		return candidate{}, false, storeErr("hits", p.ID, err)
	}
	if len(hits) != n {
		return candidate{}, false, tgerrors.Newf(tgerrors.CodeStoreQuery,
			"particle %d reported %d hits but %d were listed", p.ID, n, len(hits)).
			WithContext("source", g.cursor.Source().String())
	}

	species, err := st.Species(ctx, p.ID)
	if err != nil {
		return candidate{}, false, storeErr("species", p.ID, err)
	}

	track := model.NewTrack(len(hits))
	for _, h := range hits {
		track = append(track, h.ID)
	}
	track = append(track, int64(species))
	return candidate{hits: hits, ids: track}, true, nil
}

// collision reports a particle id already present in the sample. Ids are only
// unique within one source, so this can happen when a call crosses a
// rollover. The later track replaces the earlier one.
func (g *Generator) collision(particleID int64) {
	g.stats.Collisions++
	src := g.cursor.Source().String()
	if g.logger != nil {
		g.logger.Printf("WARN: Particle %d from %s replaces a track with the same id in this sample", particleID, src)
	}
	if g.span != nil {
		g.span.AddEvent("id_collision", trace.WithAttributes(
			attribute.Int64("particle.id", particleID),
			attribute.String("source", src),
		))
	}
}

func storeErr(query string, particleID int64, err error) error {
	if tgerrors.GetCode(err) != tgerrors.CodeUnknown {
		return err
	}
	return tgerrors.StoreQuery(query, err).WithContext("particle", particleID)
}

func (g *Generator) fail(err error) error {
	g.state = Failed
	if g.span != nil {
		g.span.RecordError(err)
		g.span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (g *Generator) saveCheckpoint(ctx context.Context) error {
	if g.backend == nil {
		return nil
	}
	cp := g.checkpoint
	cp.Position = g.cursor.Position()
	cp.Calls = g.stats.Calls
	cp.Accepted = g.stats.Accepted
	cp.UpdatedAt = time.Now().UTC()

	if err := g.backend.Save(ctx, cp); err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeCheckpoint, "failed to save checkpoint").
			WithContext("backend", g.backend.Name()).
			WithContext("id", cp.ID)
	}
	return nil
}

// State returns the phase reached by the last Generate call.
func (g *Generator) State() State {
	return g.state
}

// Stats returns cumulative counters.
func (g *Generator) Stats() Stats {
	s := g.stats
	s.Rollovers = g.cursor.Rollovers()
	return s
}

// Position returns the cursor position.
func (g *Generator) Position() cursor.Position {
	return g.cursor.Position()
}

// CheckpointID returns the id checkpoints are saved under, or "" when
// checkpointing is off.
func (g *Generator) CheckpointID() string {
	if g.checkpoint == nil {
		return ""
	}
	return g.checkpoint.ID
}

// Close releases the open source.
func (g *Generator) Close() error {
	return g.cursor.Close()
}
