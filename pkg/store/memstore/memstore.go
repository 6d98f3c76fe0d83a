// Package memstore provides an in-memory RecordStore.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/store"
)

// Dataset is the content of one in-memory source.
type Dataset struct {
	Particles []model.Particle
	Hits      []model.Hit
}

// Counters records how a store was used.
type Counters struct {
	Opens     int
	Closes    int
	Queries   int
	OpenFails int
}

// Opener serves Datasets keyed by source. Unknown sources fail to open.
type Opener struct {
	mu       sync.Mutex
	datasets map[model.Source]Dataset
	failOpen map[model.Source]error
	counters Counters
	open     map[model.Source]int
}

// NewOpener creates an empty Opener.
func NewOpener() *Opener {
	return &Opener{
		datasets: make(map[model.Source]Dataset),
		failOpen: make(map[model.Source]error),
		open:     make(map[model.Source]int),
	}
}

// Add registers a dataset for a source.
func (o *Opener) Add(src model.Source, ds Dataset) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.datasets[src] = ds
	return o
}

// FailOpen makes every Open of src return err.
func (o *Opener) FailOpen(src model.Source, err error) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failOpen[src] = err
	return o
}

// Counters returns a snapshot of usage counters.
func (o *Opener) Counters() Counters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters
}

// OpenCount returns how many stores for src are currently open.
func (o *Opener) OpenCount(src model.Source) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open[src]
}

// Open implements store.Opener.
func (o *Opener) Open(ctx context.Context, src model.Source) (store.RecordStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err, ok := o.failOpen[src]; ok {
		o.counters.OpenFails++
		return nil, err
	}
	ds, ok := o.datasets[src]
	if !ok {
		o.counters.OpenFails++
		return nil, fmt.Errorf("memstore: unknown source %q", src)
	}

	o.counters.Opens++
	o.open[src]++
	return newStore(o, src, ds), nil
}

// Store is a RecordStore over one Dataset.
type Store struct {
	owner     *Opener
	src       model.Source
	particles []model.Particle
	species   map[int64]model.Species
	hits      map[int64][]model.Hit
	closed    bool
}

func newStore(owner *Opener, src model.Source, ds Dataset) *Store {
	s := &Store{
		owner:     owner,
		src:       src,
		particles: append([]model.Particle(nil), ds.Particles...),
		species:   make(map[int64]model.Species, len(ds.Particles)),
		hits:      make(map[int64][]model.Hit),
	}
	for _, p := range ds.Particles {
		s.species[p.ID] = p.Species
	}
	for _, h := range ds.Hits {
		s.hits[h.ParticleID] = append(s.hits[h.ParticleID], h)
	}
	return s
}

func (s *Store) query(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("memstore: store %q is closed", s.src)
	}
	if s.owner != nil {
		s.owner.mu.Lock()
		s.owner.counters.Queries++
		s.owner.mu.Unlock()
	}
	return nil
}

// Particles implements store.RecordStore.
func (s *Store) Particles(ctx context.Context) ([]model.Particle, error) {
	if err := s.query(ctx); err != nil {
		return nil, err
	}
	return append([]model.Particle(nil), s.particles...), nil
}

// HitCount implements store.RecordStore.
func (s *Store) HitCount(ctx context.Context, particleID int64) (int, error) {
	if err := s.query(ctx); err != nil {
		return 0, err
	}
	return len(s.hits[particleID]), nil
}

// Hits implements store.RecordStore.
func (s *Store) Hits(ctx context.Context, particleID int64) ([]model.Hit, error) {
	if err := s.query(ctx); err != nil {
		return nil, err
	}
	return append([]model.Hit(nil), s.hits[particleID]...), nil
}

// Species implements store.RecordStore.
func (s *Store) Species(ctx context.Context, particleID int64) (model.Species, error) {
	if err := s.query(ctx); err != nil {
		return 0, err
	}
	sp, ok := s.species[particleID]
	if !ok {
		return 0, fmt.Errorf("memstore: particle %d not found in %q", particleID, s.src)
	}
	return sp, nil
}

// Close implements store.RecordStore.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.owner != nil {
		s.owner.mu.Lock()
		s.owner.counters.Closes++
		s.owner.open[s.src]--
		s.owner.mu.Unlock()
	}
	return nil
}

// Particle builds a particle together with n hits. Hit ids start at firstHit.
func Particle(id int64, species model.Species, n int, firstHit int64) (model.Particle, []model.Hit) {
	hits := make([]model.Hit, n)
	for i := range hits {
		hid := firstHit + int64(i)
		hits[i] = model.Hit{
			ID:         hid,
			X:          float64(hid),
			Y:          float64(hid) * 0.5,
			Z:          float64(i),
			ParticleID: id,
		}
	}
	return model.Particle{ID: id, Species: species}, hits
}

// With appends a particle with n hits whose ids are id*1000+i.
func (d Dataset) With(id int64, species model.Species, n int) Dataset {
	p, hits := Particle(id, species, n, id*1000)
	d.Particles = append(append([]model.Particle(nil), d.Particles...), p)
	d.Hits = append(append([]model.Hit(nil), d.Hits...), hits...)
	return d
}

var (
	_ store.Opener      = (*Opener)(nil)
	_ store.RecordStore = (*Store)(nil)
)
