// Package store defines the record store boundary the generator reads
// particles and hits through.
package store

import (
	"context"

	"github.com/logflow/trackgen/internal/model"
)

// RecordStore exposes particle and hit queries for one opened source.
type RecordStore interface {
	// Particles returns every particle of the source in a stable order.
	Particles(ctx context.Context) ([]model.Particle, error)

	// HitCount returns the number of hits attributed to a particle.
	HitCount(ctx context.Context, particleID int64) (int, error)

	// Hits returns the hits of a particle in a stable order.
	Hits(ctx context.Context, particleID int64) ([]model.Hit, error)

	// Species returns the species code of a particle.
	Species(ctx context.Context, particleID int64) (model.Species, error)

	// Close releases the connection to the source.
	Close() error
}

// Opener opens a RecordStore for a source.
type Opener interface {
	Open(ctx context.Context, src model.Source) (RecordStore, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, src model.Source) (RecordStore, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, src model.Source) (RecordStore, error) {
	return f(ctx, src)
}
