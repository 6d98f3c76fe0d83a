package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/config"
	"github.com/logflow/trackgen/pkg/sampler"
	"github.com/logflow/trackgen/pkg/source"
	"github.com/logflow/trackgen/pkg/store"
	"github.com/logflow/trackgen/pkg/tui"
)

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	sources, err := source.Expand(cfg.Sources)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	opener, err := buildOpener(ctx, cfg, sources)
	if err != nil {
		return err
	}

	filter := sampler.NewFilter(cfg.Sampler.HitCountThreshold, model.Species(cfg.Sampler.TargetSpecies))
	reports, err := inspectSources(ctx, sources, opener, filter, inspectWorkers)
	if err != nil {
		return err
	}
	tui.PrintInspectReport(cmd.OutOrStdout(), reports)
	return nil
}

// inspectSources scans sources in parallel, each with its own store. A source
// that fails to scan is reported, not fatal; only cancellation aborts.
func inspectSources(ctx context.Context, sources []model.Source, opener store.Opener, filter sampler.Filter, workers int) ([]tui.SourceReport, error) {
	reports := make([]tui.SourceReport, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			r := tui.SourceReport{Source: src.String()}
			r.Particles, r.Qualifying, r.Err = scanSource(ctx, opener, src, filter)
			reports[i] = r
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func scanSource(ctx context.Context, opener store.Opener, src model.Source, filter sampler.Filter) (particles, qualifying int, err error) {
	st, err := opener.Open(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	defer st.Close()

	list, err := st.Particles(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range list {
		n, err := st.HitCount(ctx, p.ID)
		if err != nil {
			return len(list), qualifying, err
		}
		if filter.Qualifies(p, n) {
			qualifying++
		}
	}
	return len(list), qualifying, nil
}
