// Package sqlstore reads particle and hit records from simulation databases
// through database/sql. SQLite files (as written by the detector simulation)
// and DuckDB files are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/logflow/trackgen/internal/model"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/store"
)

// Driver selects the database engine.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverDuckDB Driver = "duckdb"
)

// ParseDriver parses a driver name. Unknown names return an error.
func ParseDriver(s string) (Driver, error) {
	switch s {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "duckdb":
		return DriverDuckDB, nil
	default:
		return "", tgerrors.Configuration("unsupported store driver %q", s)
	}
}

// dsn returns a read-only data source name for path.
func (d Driver) dsn(path string) string {
	switch d {
	case DriverDuckDB:
		return path + "?access_mode=read_only"
	default:
		return path + "?_pragma=query_only(1)&_pragma=busy_timeout(5000)"
	}
}

// Schema names the tables and columns holding particles and hits.
type Schema struct {
	ParticleTable   string `yaml:"particle_table"`
	ParticleID      string `yaml:"particle_id"`
	ParticleSpecies string `yaml:"particle_species"`

	HitTable    string `yaml:"hit_table"`
	HitID       string `yaml:"hit_id"`
	HitParticle string `yaml:"hit_particle"`
	HitX        string `yaml:"hit_x"`
	HitY        string `yaml:"hit_y"`
	HitZ        string `yaml:"hit_z"`
}

// DefaultSchema returns the layout written by the tracker simulation.
func DefaultSchema() Schema {
	return Schema{
		ParticleTable:   "Particle",
		ParticleID:      "id",
		ParticleSpecies: "pdgId",
		HitTable:        "StrawDigiMC",
		HitID:           "id",
		HitParticle:     "particle",
		HitX:            "x",
		HitY:            "y",
		HitZ:            "z",
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that every name is a plain SQL identifier. Names are
// interpolated into queries, so anything else is rejected.
func (s Schema) Validate() error {
	names := map[string]string{
		"particle_table":   s.ParticleTable,
		"particle_id":      s.ParticleID,
		"particle_species": s.ParticleSpecies,
		"hit_table":        s.HitTable,
		"hit_id":           s.HitID,
		"hit_particle":     s.HitParticle,
		"hit_x":            s.HitX,
		"hit_y":            s.HitY,
		"hit_z":            s.HitZ,
	}
	for field, name := range names {
		if !identRe.MatchString(name) {
			return tgerrors.Configuration("invalid schema identifier %q", name).WithContext("field", field)
		}
	}
	return nil
}

func (s Schema) queries() queries {
	return queries{
		particles: fmt.Sprintf(`SELECT %s, %s FROM %s ORDER BY %s`,
			s.ParticleID, s.ParticleSpecies, s.ParticleTable, s.ParticleID),
		hitCount: fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`,
			s.HitTable, s.HitParticle),
		hits: fmt.Sprintf(`SELECT %s, %s, %s, %s, %s FROM %s WHERE %s = ? ORDER BY %s`,
			s.HitID, s.HitX, s.HitY, s.HitZ, s.HitParticle, s.HitTable, s.HitParticle, s.HitID),
		species: fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
			s.ParticleSpecies, s.ParticleTable, s.ParticleID),
	}
}

type queries struct {
	particles string
	hitCount  string
	hits      string
	species   string
}

// Stager makes a source available as a local file. release is called when
// the store is closed.
type Stager interface {
	Stage(ctx context.Context, src model.Source) (path string, release func() error, err error)
}

// Options configures an Opener.
type Options struct {
	Driver Driver
	Schema Schema

	// Stager resolves non-local sources. Nil means every source is a local path.
	Stager Stager
}

// Opener opens one database per source.
type Opener struct {
	opts    Options
	queries queries
}

// NewOpener validates opts and returns an Opener.
func NewOpener(opts Options) (*Opener, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if _, err := ParseDriver(string(opts.Driver)); err != nil {
		return nil, err
	}
	if opts.Schema == (Schema{}) {
		opts.Schema = DefaultSchema()
	}
	if err := opts.Schema.Validate(); err != nil {
		return nil, err
	}
	return &Opener{opts: opts, queries: opts.Schema.queries()}, nil
}

// Open implements store.Opener.
func (o *Opener) Open(ctx context.Context, src model.Source) (store.RecordStore, error) {
	path := string(src)
	release := func() error { return nil }

	if o.opts.Stager != nil {
		p, rel, err := o.opts.Stager.Stage(ctx, src)
		if err != nil {
			return nil, tgerrors.SourceOpen(string(src), err)
		}
		path = p
		if rel != nil {
			release = rel
		}
	}

	// sqlite would silently create a missing file.
	if _, err := os.Stat(path); err != nil {
		release()
		return nil, tgerrors.SourceOpen(string(src), err)
	}

	db, err := sql.Open(string(o.opts.Driver), o.opts.Driver.dsn(path))
	if err != nil {
		release()
		return nil, tgerrors.SourceOpen(string(src), err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		release()
		return nil, tgerrors.SourceOpen(string(src), err)
	}

	s := &Store{
		src:     src,
		db:      db,
		release: release,
	}
	if err := s.prepare(ctx, o.queries); err != nil {
		s.Close()
		return nil, tgerrors.SourceOpen(string(src), err)
	}
	return s, nil
}

// Store is a RecordStore over one database file.
type Store struct {
	src     model.Source
	db      *sql.DB
	release func() error
	closed  bool

	particlesStmt *sql.Stmt
	hitCountStmt  *sql.Stmt
	hitsStmt      *sql.Stmt
	speciesStmt   *sql.Stmt
}

func (s *Store) prepare(ctx context.Context, q queries) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.particlesStmt, q.particles},
		{&s.hitCountStmt, q.hitCount},
		{&s.hitsStmt, q.hits},
		{&s.speciesStmt, q.species},
	}
	for _, st := range stmts {
		stmt, err := s.db.PrepareContext(ctx, st.query)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", st.query, err)
		}
		*st.dst = stmt
	}
	return nil
}

// Source returns the source this store was opened for.
func (s *Store) Source() model.Source { return s.src }

// Particles implements store.RecordStore.
func (s *Store) Particles(ctx context.Context) ([]model.Particle, error) {
	rows, err := s.particlesStmt.QueryContext(ctx)
	if err != nil {
		return nil, tgerrors.StoreQuery("particles", err).WithContext("source", string(s.src))
	}
	defer rows.Close()

	var particles []model.Particle
	for rows.Next() {
		var p model.Particle
		if err := rows.Scan(&p.ID, &p.Species); err != nil {
			return nil, tgerrors.StoreQuery("particles", err).WithContext("source", string(s.src))
		}
		particles = append(particles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, tgerrors.StoreQuery("particles", err).WithContext("source", string(s.src))
	}
	return particles, nil
}

// HitCount implements store.RecordStore.
func (s *Store) HitCount(ctx context.Context, particleID int64) (int, error) {
	var n int
	if err := s.hitCountStmt.QueryRowContext(ctx, particleID).Scan(&n); err != nil {
		return 0, tgerrors.StoreQuery("hit_count", err).WithContext("particle", particleID)
	}
	return n, nil
}

// Hits implements store.RecordStore.
func (s *Store) Hits(ctx context.Context, particleID int64) ([]model.Hit, error) {
	rows, err := s.hitsStmt.QueryContext(ctx, particleID)
	if err != nil {
		return nil, tgerrors.StoreQuery("hits", err).WithContext("particle", particleID)
	}
	defer rows.Close()

	var hits []model.Hit
	for rows.Next() {
		var h model.Hit
		if err := rows.Scan(&h.ID, &h.X, &h.Y, &h.Z, &h.ParticleID); err != nil {
			return nil, tgerrors.StoreQuery("hits", err).WithContext("particle", particleID)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, tgerrors.StoreQuery("hits", err).WithContext("particle", particleID)
	}
	return hits, nil
}

// Species implements store.RecordStore.
func (s *Store) Species(ctx context.Context, particleID int64) (model.Species, error) {
	var sp model.Species
	if err := s.speciesStmt.QueryRowContext(ctx, particleID).Scan(&sp); err != nil {
		return 0, tgerrors.StoreQuery("species", err).WithContext("particle", particleID)
	}
	return sp, nil
}

// Close releases statements, the database handle and any staged file.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs tgerrors.MultiError
	for _, stmt := range []*sql.Stmt{s.particlesStmt, s.hitCountStmt, s.hitsStmt, s.speciesStmt} {
		if stmt != nil {
			errs.Add(stmt.Close())
		}
	}
	errs.Add(s.db.Close())
	if s.release != nil {
		errs.Add(s.release())
	}
	return errs.Combined()
}

var (
	_ store.Opener      = (*Opener)(nil)
	_ store.RecordStore = (*Store)(nil)
)
