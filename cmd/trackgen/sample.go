package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/checkpoint"
	"github.com/logflow/trackgen/pkg/config"
	"github.com/logflow/trackgen/pkg/distribution"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/export"
	"github.com/logflow/trackgen/pkg/sampler"
	"github.com/logflow/trackgen/pkg/source"
	"github.com/logflow/trackgen/pkg/telemetry"
	"github.com/logflow/trackgen/pkg/tui"
)

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if calls < 1 {
		return tgerrors.Configuration("--calls must be at least 1, got %d", calls)
	}

	mode := model.ParseMode(modeFlag)
	if mode != model.ModeEvaluation && mode != model.ModeTraining {
		return tgerrors.Configuration("unknown mode %q", modeFlag)
	}

	if compression != "" {
		cfg.Output.Compression = compression
	}
	codec, err := export.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	sources, err := source.Expand(cfg.Sources)
	if err != nil {
		return err
	}
	dist, err := distribution.FromConfig(cfg.Distribution)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	logger := newLogger()

	otlp := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
	otlp.Enabled = cfg.Telemetry.Enabled
	otlp.Endpoint = cfg.Telemetry.Endpoint
	otlp.ServiceVersion = version
	otlp.SamplingRatio = cfg.Telemetry.SampleRatio
	tracer, shutdown, err := telemetry.Setup(ctx, otlp)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Printf("WARN: telemetry shutdown: %v", err)
		}
	}()

	opener, err := buildOpener(ctx, cfg, sources)
	if err != nil {
		return err
	}

	backend, redisBackend, err := buildBackend(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeCheckpoint, "failed to open checkpoint backend")
	}
	if backend != nil {
		defer backend.Close()
	}

	var lock *checkpoint.Lock
	if redisBackend != nil && cfg.Checkpoint.ID != "" {
		lock, err = redisBackend.AcquireLock(ctx, cfg.Checkpoint.ID, cfg.Checkpoint.LockTTL)
		if err != nil {
			return tgerrors.Wrap(err, tgerrors.CodeCheckpoint, "checkpoint is in use").
				WithContext("id", cfg.Checkpoint.ID)
		}
		defer lock.Release(context.Background())
	}

	opts := []sampler.Option{sampler.WithTracer(tracer)}
	if verbose {
		opts = append(opts, sampler.WithLogger(logger))
	}
	if backend != nil {
		opts = append(opts, sampler.WithCheckpoint(backend, cfg.Checkpoint.ID))
	}

	gen, err := sampler.New(ctx, sampler.Config{
		Distribution:      dist,
		Sources:           sources,
		HitCountThreshold: cfg.Sampler.HitCountThreshold,
		TargetSpecies:     model.Species(cfg.Sampler.TargetSpecies),
	}, opener, opts...)
	if err != nil {
		return err
	}
	defer gen.Close()

	if verbose {
		logger.Printf("INFO: %d sources, mode %s, %d calls", len(sources), mode, calls)
	}

	report := tui.SampleReport{OutputDir: cfg.Output.Dir}
	bar := tui.ShowProgress(cmd.ErrOrStderr(), int64(calls), "Sampling")
	start := time.Now()

	for i := 0; i < calls; i++ {
		sample, err := gen.Generate(ctx, mode)
		if err != nil {
			if sample == nil {
				return fmt.Errorf("call %d: %w", i, err)
			}
			logger.Printf("WARN: %v", err)
		}

		report.Calls++
		report.Tracks += int64(sample.Target)
		report.Hits += int64(len(sample.Hits))

		if cfg.Output.Dir != "" {
			if err := writeSample(cfg.Output.Dir, i, sample, export.Options{Compression: codec}); err != nil {
				return err
			}
		}
		if lock != nil {
			if err := lock.Extend(ctx); err != nil {
				logger.Printf("WARN: checkpoint lock: %v", err)
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	stats := gen.Stats()
	report.Rejected = stats.Rejected
	report.Rollovers = stats.Rollovers
	report.Checkpoint = gen.CheckpointID()
	report.Duration = time.Since(start)
	tui.PrintSampleReport(cmd.OutOrStdout(), report)
	return nil
}

// writeSample writes hits_NNNN.parquet and, in evaluation mode,
// tracks_NNNN.parquet.
func writeSample(dir string, i int, sample *sampler.Sample, opts export.Options) error {
	hits := export.HitsRecord(sample.Hits)
	defer hits.Release()
	if err := export.WriteParquetFile(filepath.Join(dir, fmt.Sprintf("hits_%04d.parquet", i)), hits, opts); err != nil {
		return err
	}

	if sample.Tracks == nil {
		return nil
	}
	tracks := export.TracksRecord(sample.Tracks)
	defer tracks.Release()
	return export.WriteParquetFile(filepath.Join(dir, fmt.Sprintf("tracks_%04d.parquet", i)), tracks, opts)
}
