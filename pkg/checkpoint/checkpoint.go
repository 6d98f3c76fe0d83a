// Package checkpoint persists generator cursor positions so an interrupted
// sampling run can resume where it stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/cursor"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/source"
)

// Checkpoint records where a generator's cursor stood after its last
// successful call.
type Checkpoint struct {
	ID       string          `json:"id"`
	Sources  []string        `json:"sources"`
	Position cursor.Position `json:"position"`

	Calls    int64 `json:"calls"`
	Accepted int64 `json:"accepted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a checkpoint for a source list. An empty id gets a random one.
func New(id string, sources []model.Source) *Checkpoint {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	return &Checkpoint{
		ID:        id,
		Sources:   source.Strings(sources),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewID returns a random checkpoint id.
func NewID() string {
	return uuid.NewString()
}

// Matches checks that the checkpoint was taken over the same source list.
// Positions are only meaningful against the list they were recorded for.
func (cp *Checkpoint) Matches(sources []model.Source) error {
	got := source.Strings(sources)
	if len(got) != len(cp.Sources) {
		return tgerrors.Configuration("checkpoint %s covers %d sources, configured %d", cp.ID, len(cp.Sources), len(got))
	}
	for i := range got {
		if got[i] != cp.Sources[i] {
			return tgerrors.Configuration("checkpoint %s source %d is %q, configured %q", cp.ID, i, cp.Sources[i], got[i])
		}
	}
	return nil
}

// Backend stores checkpoints.
type Backend interface {
	// Save persists a checkpoint, replacing any previous version.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by ID. Missing checkpoints return os.ErrNotExist.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, id string) error

	// Name returns the backend name for logging.
	Name() string

	Close() error
}

// FileBackend stores one JSON file per checkpoint.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file backend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid checkpoint id %q", id)
	}
	return filepath.Join(b.dir, id+".checkpoint"), nil
}

// Save writes the checkpoint atomically through a temp file and rename.
func (b *FileBackend) Save(ctx context.Context, cp *Checkpoint) error {
	path, err := b.path(cp.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint from disk.
func (b *FileBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	path, err := b.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint file. Deleting a missing checkpoint is not an error.
func (b *FileBackend) Delete(ctx context.Context, id string) error {
	path, err := b.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Name returns "file".
func (b *FileBackend) Name() string { return "file" }

// Close does nothing.
func (b *FileBackend) Close() error { return nil }

var _ Backend = (*FileBackend)(nil)
