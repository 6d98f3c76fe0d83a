// Package cursor presents particles from an ordered list of sources as one
// continuous sequence, rolling over to the next source when the current one
// runs out.
//
// A Cursor holds at most one open store. On rollover the current store is
// closed before the next source is opened. Running past the last source is
// fatal and sticky: every later call to Next reports the same exhaustion.
//
// A Cursor is not safe for concurrent use.
package cursor

import (
	"context"
	"errors"

	"github.com/logflow/trackgen/internal/model"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/store"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("cursor: closed")

// Position locates the cursor: the index of the current source and the number
// of its particles already handed out.
type Position struct {
	SourceIndex int `json:"source_index"`
	Offset      int `json:"offset"`
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithObserver registers an observer for rollover notices.
func WithObserver(o Observer) Option {
	return func(c *Cursor) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithStart resumes at a saved position instead of the first source.
func WithStart(p Position) Option {
	return func(c *Cursor) {
		c.start = p
	}
}

// stepResult tells Next whether step produced a particle or hit the end of the
// current source.
type stepResult int

const (
	stepParticle stepResult = iota
	stepEndOfSource
)

// Cursor walks particles across sources.
type Cursor struct {
	sources   []model.Source
	opener    store.Opener
	observers Observers
	start     Position

	index     int
	st        store.RecordStore
	particles []model.Particle
	pos       int
	loaded    bool

	rollovers int
	exhausted error
	closed    bool
}

// Open creates a cursor and eagerly opens its first source (or the source
// named by WithStart).
func Open(ctx context.Context, sources []model.Source, opener store.Opener, opts ...Option) (*Cursor, error) {
	if len(sources) == 0 {
		return nil, tgerrors.Configuration("at least one source is required")
	}
	if opener == nil {
		return nil, tgerrors.Configuration("record store opener is required")
	}

	c := &Cursor{
		sources: append([]model.Source(nil), sources...),
		opener:  opener,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.start.SourceIndex < 0 || c.start.SourceIndex >= len(c.sources) {
		return nil, tgerrors.Configuration("start source index %d out of range", c.start.SourceIndex).
			WithContext("sources", len(c.sources))
	}
	if c.start.Offset < 0 {
		return nil, tgerrors.Configuration("start offset %d is negative", c.start.Offset)
	}

	c.index = c.start.SourceIndex
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.pos = min(c.start.Offset, len(c.particles))
	return c, nil
}

// load opens sources[c.index] and reads its particle list. Any previously open
// store must already be released.
func (c *Cursor) load(ctx context.Context) error {
	src := c.sources[c.index]

	st, err := c.opener.Open(ctx, src)
	if err != nil {
		if tgerrors.IsCode(err, tgerrors.CodeSourceOpen) {
			return err
		}
		return tgerrors.SourceOpen(string(src), err)
	}

	particles, err := st.Particles(ctx)
	if err != nil {
		return errors.Join(err, st.Close())
	}

	c.st = st
	c.particles = particles
	c.pos = 0
	c.loaded = true
	return nil
}

// release closes the current store, if any.
func (c *Cursor) release() error {
	c.particles = nil
	c.pos = 0
	c.loaded = false
	if c.st == nil {
		return nil
	}
	err := c.st.Close()
	c.st = nil
	return err
}

func (c *Cursor) step() (model.Particle, stepResult) {
	if c.pos >= len(c.particles) {
		return model.Particle{}, stepEndOfSource
	}
	p := c.particles[c.pos]
	c.pos++
	return p, stepParticle
}

// Next returns the next unseen particle, rolling over to later sources as
// needed. Past the last source it returns an error matching
// errors.ErrSourcesExhausted.
func (c *Cursor) Next(ctx context.Context) (model.Particle, error) {
	if c.closed {
		return model.Particle{}, ErrClosed
	}
	if c.exhausted != nil {
		return model.Particle{}, c.exhausted
	}

	// A previous open of the current source failed; try it again.
	if !c.loaded {
		if err := c.load(ctx); err != nil {
			return model.Particle{}, err
		}
	}

	for {
		p, res := c.step()
		if res == stepParticle {
			return p, nil
		}
		if err := c.advance(ctx); err != nil {
			return model.Particle{}, err
		}
	}
}

// advance releases the current source and opens the next one.
func (c *Cursor) advance(ctx context.Context) error {
	from := c.sources[c.index]
	releaseErr := c.release()

	next := c.index + 1
	if next >= len(c.sources) {
		exhausted := tgerrors.SourcesExhausted(len(c.sources), string(from))
		exhausted.Cause = releaseErr
		c.exhausted = exhausted
		c.observers.OnExhausted(ExhaustedEvent{Last: from, Sources: len(c.sources)})
		return exhausted
	}

	c.index = next
	c.rollovers++
	c.observers.OnRollover(RolloverEvent{From: from, To: c.sources[next], Index: next})

	if err := c.load(ctx); err != nil {
		if releaseErr != nil {
			return errors.Join(err, releaseErr)
		}
		return err
	}
	return releaseErr
}

// Store returns the store of the current source. It is nil while no source is
// open.
func (c *Cursor) Store() store.RecordStore {
	return c.st
}

// Source returns the current source.
func (c *Cursor) Source() model.Source {
	return c.sources[c.index]
}

// Sources returns the configured source list.
func (c *Cursor) Sources() []model.Source {
	return append([]model.Source(nil), c.sources...)
}

// Position returns the current position.
func (c *Cursor) Position() Position {
	return Position{SourceIndex: c.index, Offset: c.pos}
}

// Rollovers returns how many times the cursor advanced to a new source.
func (c *Cursor) Rollovers() int {
	return c.rollovers
}

// Exhausted reports whether the cursor ran past its last source.
func (c *Cursor) Exhausted() bool {
	return c.exhausted != nil
}

// Close releases the open store. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}
