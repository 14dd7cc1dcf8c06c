package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"triggergate/pkg/config"
	"triggergate/pkg/control"
	"triggergate/pkg/engine"
	"triggergate/pkg/ingest"
	"triggergate/pkg/menu"
	"triggergate/pkg/metrics"
	"triggergate/pkg/output"
	"triggergate/pkg/trigger"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest, filter and output pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, logger := opts.Config, opts.Logger
	logger.Info("initializing triggergate")

	if cfg.Filter.Selected() {
		logger.Info("using trigger profile", "year", cfg.Filter.Year, "dataset", cfg.Filter.Dataset, "mc", cfg.Filter.MC, "profile_dataset", cfg.Filter.ProfileDataset())
	}
	reg := opts.registry()
	reg.LogTable(logger)
	for _, o := range trigger.Overlaps(reg) {
		logger.Warn("configured trigger is a prefix of another one", "trigger", o.Prefix.Name, "longer", o.Longer.Name)
	}

	buffer, err := engine.NewRingBuffer[[]byte](cfg.Pipeline.BufferSize)
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}

	m := metrics.New()
	promReg := prometheus.NewRegistry()
	if err := m.Register(promReg); err != nil {
		return err
	}
	for _, c := range metrics.BufferCollectors(buffer) {
		promReg.MustRegister(c)
	}

	// Menus announced over Redis land in cache; misses are read through.
	cache := menu.NewMemoryStore()
	var store menu.Store = cache
	var watcher *control.Watcher
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		redisStore := menu.NewRedisStore(client, cfg.Redis.Prefix)
		store = menu.NewCachedStore(cache, redisStore)
		watcher = control.NewWatcher(client, redisStore, cache, cfg.Redis.Channel, logger)
	}

	out, closeOutputs, err := buildOutputs(ctx, cfg.Outputs, logger)
	if err != nil {
		return err
	}
	defer closeOutputs()

	chains := func(worker int) (*engine.ProcessorChain, error) {
		return engine.NewProcessorChain(engine.NewTriggerFilter(engine.TriggerFilterConfig{
			Results:  cfg.Filter.TriggerResults,
			Registry: reg,
			Menus:    store,
			Metrics:  m,
			Logger:   logger.With("worker", worker),
		})), nil
	}
	pipeline := engine.NewPipeline(buffer, chains, out, engine.PipelineOptions{
		Workers:       cfg.Pipeline.Workers,
		BatchSize:     cfg.Pipeline.BatchSize,
		FlushInterval: cfg.Pipeline.FlushInterval,
		Metrics:       m,
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(gctx) })
	g.Go(func() error {
		return ingest.NewTCPIngestor(listenAddr(cfg.Server.TCPPort), buffer, logger).Run(gctx)
	})
	g.Go(func() error {
		return ingest.NewUDPIngestor(listenAddr(cfg.Server.UDPPort), buffer, logger).Run(gctx)
	})
	g.Go(func() error { return metrics.Serve(gctx, listenAddr(cfg.Server.HTTPPort), promReg) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	logger.Info("triggergate running",
		"tcp_port", cfg.Server.TCPPort,
		"udp_port", cfg.Server.UDPPort,
		"http_port", cfg.Server.HTTPPort,
		"buffer_size", buffer.Capacity(),
		"redis", cfg.Redis.Enabled,
	)
	err = g.Wait()
	logger.Info("shut down", "dropped", buffer.DroppedCount())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildOutputs opens every configured output. The returned func closes the
// ones holding connections.
func buildOutputs(ctx context.Context, cfgs []config.OutputConfig, logger *slog.Logger) (output.Output, func(), error) {
	var outs []output.Output
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing output", "error", err)
			}
		}
	}

	for i, oc := range cfgs {
		switch oc.Type {
		case "console":
			outs = append(outs, output.NewConsoleOutput())
		case "http":
			outs = append(outs, output.NewHTTPOutput(oc.URL, oc.Headers))
		case "postgres":
			pg, err := output.OpenPostgresOutput(oc.DSN, oc.Table)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, pg.Close)
			if err := pg.EnsureSchema(ctx); err != nil {
				closeAll()
				return nil, nil, err
			}
			outs = append(outs, pg)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("outputs[%d]: unknown type %q", i, oc.Type)
		}
		logger.Info("output configured", "type", oc.Type)
	}
	if len(outs) == 0 {
		outs = append(outs, output.NewConsoleOutput())
	}
	return output.NewFanOutOutput(outs...), closeAll, nil
}
