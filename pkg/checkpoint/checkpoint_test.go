package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/cursor"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	cp := New("run-1", []model.Source{"a.db", "b.db"})
	cp.Position = cursor.Position{SourceIndex: 1, Offset: 17}
	cp.Calls = 3
	cp.Accepted = 12
	require.NoError(t, backend.Save(ctx, cp))

	loaded, err := backend.Load(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, cp.ID, loaded.ID)
	require.Equal(t, cp.Sources, loaded.Sources)
	require.Equal(t, cp.Position, loaded.Position)
	require.Equal(t, int64(12), loaded.Accepted)
	require.WithinDuration(t, cp.UpdatedAt, loaded.UpdatedAt, time.Second)

	require.NoError(t, backend.Delete(ctx, "run-1"))
	_, err = backend.Load(ctx, "run-1")
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, backend.Delete(ctx, "run-1"))
}

func TestFileBackend_RejectsPathIDs(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	cp := New("../escape", nil)
	require.Error(t, backend.Save(context.Background(), cp))
}

func TestNew_GeneratesID(t *testing.T) {
	a := New("", nil)
	b := New("", nil)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
}

func TestCheckpoint_Matches(t *testing.T) {
	cp := New("x", []model.Source{"a.db", "b.db"})

	require.NoError(t, cp.Matches([]model.Source{"a.db", "b.db"}))
	require.ErrorIs(t, cp.Matches([]model.Source{"a.db"}), tgerrors.ErrConfiguration)
	require.ErrorIs(t, cp.Matches([]model.Source{"b.db", "a.db"}), tgerrors.ErrConfiguration)
}

func TestNewRedisBackend_Unreachable(t *testing.T) {
	cfg := DefaultRedisConfig("127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond

	_, err := NewRedisBackend(context.Background(), cfg)
	require.Error(t, err)
}

func TestMultiBackend_FallsBackToSecondary(t *testing.T) {
	ctx := context.Background()
	primary, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	secondary, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	multi := NewMultiBackend(primary, secondary, nil)
	require.Equal(t, "file+file", multi.Name())

	cp := New("shared", []model.Source{"a.db"})
	require.NoError(t, multi.Save(ctx, cp))

	require.NoError(t, primary.Delete(ctx, "shared"))
	loaded, err := multi.Load(ctx, "shared")
	require.NoError(t, err)
	require.Equal(t, "shared", loaded.ID)

	require.NoError(t, multi.Delete(ctx, "shared"))
	_, err = multi.Load(ctx, "shared")
	require.ErrorIs(t, err, os.ErrNotExist)
}
