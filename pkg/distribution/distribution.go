// Package distribution provides the random laws that decide how many tracks a
// generation call collects.
package distribution

import (
	"math"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	tgerrors "github.com/logflow/trackgen/pkg/errors"
)

// CountDistribution yields one target count per call. Values are returned as
// float64 so callers can reject samples that are negative or not integral.
type CountDistribution interface {
	Sample() float64
}

// Func adapts a function to CountDistribution.
type Func func() float64

// Sample calls f.
func (f Func) Sample() float64 { return f() }

// Constant always yields the same count.
type Constant float64

// Sample implements CountDistribution.
func (c Constant) Sample() float64 { return float64(c) }

// Sequence replays fixed values in order and wraps around at the end.
// Useful for deterministic runs.
type Sequence struct {
	values []float64
	next   int
}

// NewSequence creates a Sequence. At least one value is required.
func NewSequence(values ...float64) (*Sequence, error) {
	if len(values) == 0 {
		return nil, tgerrors.Configuration("sequence distribution needs at least one value")
	}
	return &Sequence{values: append([]float64(nil), values...)}, nil
}

// Sample implements CountDistribution.
func (s *Sequence) Sample() float64 {
	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	return v
}

// Uniform yields integers in [Min, Max] with equal probability.
type Uniform struct {
	min, max int
	dist     distuv.Uniform
}

// NewUniform creates a Uniform distribution. A nil src uses the global source.
func NewUniform(min, max int, src rand.Source) (*Uniform, error) {
	if min < 0 || max < min {
		return nil, tgerrors.Configuration("uniform distribution needs 0 <= min <= max, got [%d, %d]", min, max)
	}
	return &Uniform{
		min:  min,
		max:  max,
		dist: distuv.Uniform{Min: float64(min), Max: float64(max + 1), Src: src},
	}, nil
}

// Sample implements CountDistribution.
func (u *Uniform) Sample() float64 {
	v := math.Floor(u.dist.Rand())
	if v > float64(u.max) {
		return float64(u.max)
	}
	return v
}

// Poisson yields Poisson-distributed counts with the given mean.
type Poisson struct {
	dist distuv.Poisson
}

// NewPoisson creates a Poisson distribution. A nil src uses the global source.
func NewPoisson(mean float64, src rand.Source) (*Poisson, error) {
	if !(mean > 0) || math.IsInf(mean, 0) {
		return nil, tgerrors.Configuration("poisson mean must be positive and finite, got %v", mean)
	}
	return &Poisson{dist: distuv.Poisson{Lambda: mean, Src: src}}, nil
}

// Sample implements CountDistribution.
func (p *Poisson) Sample() float64 {
	return p.dist.Rand()
}

// Config describes a distribution in configuration files.
type Config struct {
	Kind   string    `yaml:"kind" env:"KIND"` // poisson | uniform | constant | sequence
	Mean   float64   `yaml:"mean" env:"MEAN"`
	Min    int       `yaml:"min" env:"MIN"`
	Max    int       `yaml:"max" env:"MAX"`
	Value  float64   `yaml:"value" env:"VALUE"`
	Values []float64 `yaml:"values" env:"VALUES" envSeparator:","`

	// Seed makes random kinds reproducible. Zero uses the global source.
	Seed int64 `yaml:"seed" env:"SEED"`
}

// FromConfig builds the configured distribution.
func FromConfig(cfg Config) (CountDistribution, error) {
	var src rand.Source
	if cfg.Seed != 0 {
		src = rand.NewSource(uint64(cfg.Seed))
	}

	switch strings.ToLower(cfg.Kind) {
	case "poisson":
		p, err := NewPoisson(cfg.Mean, src)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "uniform":
		u, err := NewUniform(cfg.Min, cfg.Max, src)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "constant":
		if cfg.Value < 0 || cfg.Value != math.Trunc(cfg.Value) {
			return nil, tgerrors.Configuration("constant distribution needs a non-negative integer, got %v", cfg.Value)
		}
		return Constant(cfg.Value), nil
	case "sequence":
		seq, err := NewSequence(cfg.Values...)
		if err != nil {
			return nil, err
		}
		return seq, nil
	default:
		return nil, tgerrors.Configuration("unknown distribution kind %q", cfg.Kind)
	}
}
