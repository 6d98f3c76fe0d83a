// Package model defines core data structures for trackgen.
package model

import "fmt"

// Source identifies one data source: a filesystem path or an s3:// URL.
type Source string

// String returns the source identifier.
func (s Source) String() string { return string(s) }

// Species is a PDG particle code.
type Species int64

// Common species codes found in the detector simulation.
const (
	Electron  Species = 11
	Positron  Species = -11
	MuonMinus Species = 13
	MuonPlus  Species = -13
	PionPlus  Species = 211
	PionMinus Species = -211
	Proton    Species = 2212
)

var speciesNames = map[Species]string{
	Electron:  "e-",
	Positron:  "e+",
	MuonMinus: "mu-",
	MuonPlus:  "mu+",
	PionPlus:  "pi+",
	PionMinus: "pi-",
	Proton:    "p",
}

// String returns the short particle name, or the raw code if unknown.
func (s Species) String() string {
	if name, ok := speciesNames[s]; ok {
		return name
	}
	return fmt.Sprintf("pdg(%d)", int64(s))
}

// Particle is one simulated particle record.
type Particle struct {
	// ID is unique within a single source.
	ID int64

	// Species is the particle's PDG code.
	Species Species
}

// Hit is a single detector measurement attributed to a particle.
type Hit struct {
	ID         int64
	X, Y, Z    float64
	ParticleID int64
}

// Point returns the hit coordinates.
func (h Hit) Point() Point {
	return Point{X: h.X, Y: h.Y, Z: h.Z}
}

// Point is a 3D coordinate triple.
type Point struct {
	X, Y, Z float64
}
