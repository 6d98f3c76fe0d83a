package checkpoint

import (
	"context"
	"errors"
	"log"
)

// MultiBackend mirrors checkpoints to a second backend, usually a local file
// backend in front of a shared Redis one.
type MultiBackend struct {
	primary   Backend
	secondary Backend
	logger    *log.Logger
}

// NewMultiBackend creates a backend that writes to both primary and secondary.
func NewMultiBackend(primary, secondary Backend, logger *log.Logger) *MultiBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &MultiBackend{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Save writes to both backends (primary first). Secondary failures are logged.
func (m *MultiBackend) Save(ctx context.Context, cp *Checkpoint) error {
	if err := m.primary.Save(ctx, cp); err != nil {
		return err
	}
	if err := m.secondary.Save(ctx, cp); err != nil {
		m.logger.Printf("WARN: checkpoint %s not mirrored to %s: %v", cp.ID, m.secondary.Name(), err)
	}
	return nil
}

// Load reads from primary, falls back to secondary.
func (m *MultiBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	cp, err := m.primary.Load(ctx, id)
	if err == nil {
		return cp, nil
	}
	return m.secondary.Load(ctx, id)
}

// Delete removes from both backends.
func (m *MultiBackend) Delete(ctx context.Context, id string) error {
	return errors.Join(m.primary.Delete(ctx, id), m.secondary.Delete(ctx, id))
}

// Name returns the combined backend names.
func (m *MultiBackend) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// Close closes both backends.
func (m *MultiBackend) Close() error {
	return errors.Join(m.primary.Close(), m.secondary.Close())
}

var _ Backend = (*MultiBackend)(nil)
