package sampler

import (
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logflow/trackgen/pkg/cursor"
)

// LogObserver writes rollover notices to a logger.
type LogObserver struct {
	Logger *log.Logger
}

// NewLogObserver creates a LogObserver. A nil logger uses log.Default().
func NewLogObserver(logger *log.Logger) *LogObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &LogObserver{Logger: logger}
}

// OnRollover implements cursor.Observer.
func (o *LogObserver) OnRollover(e cursor.RolloverEvent) {
	o.Logger.Printf("INFO: Run out of particles in %s", e.From)
	o.Logger.Printf("INFO: Connecting to the next track database %s (%d)", e.To, e.Index)
}

// OnExhausted implements cursor.Observer.
func (o *LogObserver) OnExhausted(e cursor.ExhaustedEvent) {
	o.Logger.Printf("WARN: Run out of particles in %s, no sources left (%d configured)", e.Last, e.Sources)
}

// spanObserver records cursor notices as events on the span of the Generate
// call in progress.
type spanObserver struct {
	g *Generator
}

func (o spanObserver) OnRollover(e cursor.RolloverEvent) {
	if o.g.span == nil {
		return
	}
	o.g.span.AddEvent("rollover", trace.WithAttributes(
		attribute.String("source.from", e.From.String()),
		attribute.String("source.to", e.To.String()),
		attribute.Int("source.index", e.Index),
	))
}

func (o spanObserver) OnExhausted(e cursor.ExhaustedEvent) {
	if o.g.span == nil {
		return
	}
	o.g.span.AddEvent("sources_exhausted", trace.WithAttributes(
		attribute.String("source.last", e.Last.String()),
		attribute.Int("source.count", e.Sources),
	))
}

var (
	_ cursor.Observer = (*LogObserver)(nil)
	_ cursor.Observer = spanObserver{}
)
