package sampler

import (
	"log"

	"go.opentelemetry.io/otel/trace"

	"github.com/logflow/trackgen/pkg/checkpoint"
	"github.com/logflow/trackgen/pkg/cursor"
)

// Option configures a Generator.
type Option func(*Generator)

// WithObserver registers a cursor observer.
func WithObserver(o cursor.Observer) Option {
	return func(g *Generator) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithLogger logs rollover notices to logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
		g.observers = append(g.observers, NewLogObserver(logger))
	}
}

// WithTracer traces each Generate call.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Generator) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithCheckpoint saves the cursor position under id after every successful
// call. An existing checkpoint with that id is resumed.
func WithCheckpoint(backend checkpoint.Backend, id string) Option {
	return func(g *Generator) {
		g.backend = backend
		g.checkpointID = id
	}
}

// WithResume starts the cursor at p. It takes precedence over a stored
// checkpoint.
func WithResume(p cursor.Position) Option {
	return func(g *Generator) {
		g.resume = &p
	}
}
