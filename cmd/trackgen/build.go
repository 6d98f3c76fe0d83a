package main

import (
	"context"
	"log"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/checkpoint"
	"github.com/logflow/trackgen/pkg/config"
	"github.com/logflow/trackgen/pkg/source"
	"github.com/logflow/trackgen/pkg/storage/s3"
	"github.com/logflow/trackgen/pkg/store/sqlstore"
)

// buildOpener creates the store opener for cfg. s3:// sources get a stager.
func buildOpener(ctx context.Context, cfg *config.Config, sources []model.Source) (*sqlstore.Opener, error) {
	opts := sqlstore.Options{
		Driver: sqlstore.Driver(cfg.Store.Driver),
		Schema: cfg.Store.Schema,
	}

	for _, src := range sources {
		if !source.IsRemote(src) {
			continue
		}
		s3cfg := s3.DefaultConfig(cfg.S3.Region)
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.UsePathStyle = cfg.S3.PathStyle
		s3cfg.StagingDir = cfg.S3.StagingDir

		stager, err := s3.NewStager(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		opts.Stager = stager
		break
	}

	return sqlstore.NewOpener(opts)
}

// buildBackend creates the checkpoint backend, or nil when checkpointing is
// off. The returned redis backend is non-nil when locking is available.
func buildBackend(ctx context.Context, cfg config.CheckpointConfig, logger *log.Logger) (checkpoint.Backend, *checkpoint.RedisBackend, error) {
	newRedis := func() (*checkpoint.RedisBackend, error) {
		rcfg := checkpoint.DefaultRedisConfig(cfg.RedisAddr)
		rcfg.Password = cfg.RedisPassword
		rcfg.Database = cfg.RedisDB
		rcfg.TTL = cfg.TTL
		return checkpoint.NewRedisBackend(ctx, rcfg)
	}

	switch cfg.Backend {
	case "file":
		fb, err := checkpoint.NewFileBackend(cfg.Dir)
		return fb, nil, err
	case "redis":
		rb, err := newRedis()
		if err != nil {
			return nil, nil, err
		}
		return rb, rb, nil
	case "file+redis":
		fb, err := checkpoint.NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		rb, err := newRedis()
		if err != nil {
			return nil, nil, err
		}
		return checkpoint.NewMultiBackend(fb, rb, logger), rb, nil
	default:
		return nil, nil, nil
	}
}
