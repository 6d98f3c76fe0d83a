package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tgerrors "github.com/logflow/trackgen/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
sources: ["a.db", "b.db"]
store:
  driver: sqlite
  hit_table: Hits
sampler:
  hit_count_threshold: 15
distribution:
  kind: uniform
  min: 1
  max: 4
  seed: 7
checkpoint:
  backend: file
  dir: /tmp/cp
  lock_ttl: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"a.db", "b.db"}, cfg.Sources)
	require.Equal(t, "Hits", cfg.Store.Schema.HitTable)
	require.Equal(t, "Particle", cfg.Store.Schema.ParticleTable)
	require.Equal(t, 15, cfg.Sampler.HitCountThreshold)
	require.Equal(t, int64(11), cfg.Sampler.TargetSpecies)
	require.Equal(t, "uniform", cfg.Distribution.Kind)
	require.Equal(t, int64(7), cfg.Distribution.Seed)
	require.Equal(t, 30*time.Second, cfg.Checkpoint.LockTTL)
	require.Equal(t, "snappy", cfg.Output.Compression)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `sources: ["a.db"]`)
	t.Setenv("TRACKGEN_SOURCES", "x.db,y.db")
	t.Setenv("TRACKGEN_SAMPLER_TARGET_SPECIES", "-11")
	t.Setenv("TRACKGEN_DISTRIBUTION_KIND", "constant")
	t.Setenv("TRACKGEN_DISTRIBUTION_VALUE", "3")
	t.Setenv("TRACKGEN_TELEMETRY_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"x.db", "y.db"}, cfg.Sources)
	require.Equal(t, int64(-11), cfg.Sampler.TargetSpecies)
	require.Equal(t, "constant", cfg.Distribution.Kind)
	require.Equal(t, 3.0, cfg.Distribution.Value)
	require.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no sources", `distribution: {kind: constant, value: 1}`},
		{"unknown key", "sources: [a.db]\nbogus: 1"},
		{"bad driver", "sources: [a.db]\nstore: {driver: mysql}"},
		{"bad identifier", "sources: [a.db]\nstore: {hit_table: \"x; DROP\"}"},
		{"negative threshold", "sources: [a.db]\nsampler: {hit_count_threshold: -1}"},
		{"bad distribution", "sources: [a.db]\ndistribution: {kind: gamma}"},
		{"bad checkpoint backend", "sources: [a.db]\ncheckpoint: {backend: s3}"},
		{"redis without address", "sources: [a.db]\ncheckpoint: {backend: redis}"},
		{"redis zero lock ttl", "sources: [a.db]\ncheckpoint: {backend: redis, redis_addr: \"localhost:6379\", lock_ttl: 0s}"},
		{"file+redis negative lock ttl", "sources: [a.db]\ncheckpoint: {backend: file+redis, redis_addr: \"localhost:6379\", lock_ttl: -1s}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, tgerrors.ErrConfiguration)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, tgerrors.ErrConfiguration)
}

func TestManager_EmptyPathUsesDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load(""))
	require.Equal(t, "poisson", m.Get().Distribution.Kind)
	require.Equal(t, "", m.Path())
	require.ErrorIs(t, m.Get().Validate(), tgerrors.ErrConfiguration)
}
