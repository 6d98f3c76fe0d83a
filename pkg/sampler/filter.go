package sampler

import "github.com/logflow/trackgen/internal/model"

const (
	// DefaultHitCountThreshold is the minimum number of hits a particle needs
	// to be sampled.
	DefaultHitCountThreshold = 20

	// DefaultTargetSpecies is the species sampled when none is configured.
	DefaultTargetSpecies = model.Electron
)

// Filter decides whether a particle qualifies for a sample.
type Filter struct {
	Threshold int
	Species   model.Species
}

// NewFilter builds a Filter, substituting the defaults for a zero threshold or
// species.
func NewFilter(threshold int, species model.Species) Filter {
	if threshold == 0 {
		threshold = DefaultHitCountThreshold
	}
	if species == 0 {
		species = DefaultTargetSpecies
	}
	return Filter{Threshold: threshold, Species: species}
}

// Qualifies reports whether p, which has hitCount hits, is accepted.
func (f Filter) Qualifies(p model.Particle, hitCount int) bool {
	return hitCount >= f.Threshold && p.Species == f.Species
}
