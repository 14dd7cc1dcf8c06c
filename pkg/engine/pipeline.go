package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"triggergate/pkg/metrics"
	"triggergate/pkg/model"
	"triggergate/pkg/output"
	"triggergate/pkg/trigger"
)

// PipelineOptions tunes a Pipeline. Zero values select defaults.
type PipelineOptions struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Pipeline connects the Ingest Buffer -> per-worker ProcessorChain -> Output.
type Pipeline struct {
	buffer   *RingBuffer[[]byte]
	newChain ChainFactory
	output   output.Output

	batchSize     int
	workers       int
	flushInterval time.Duration

	metrics *metrics.Metrics
	logger  *slog.Logger
	errLog  *rate.Sometimes

	wg sync.WaitGroup
}

func NewPipeline(buf *RingBuffer[[]byte], newChain ChainFactory, out output.Output, opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		buffer:        buf,
		newChain:      newChain,
		output:        out,
		batchSize:     opts.BatchSize,
		workers:       opts.Workers,
		flushInterval: opts.FlushInterval,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		errLog:        &rate.Sometimes{First: 10, Interval: time.Second},
	}
	if p.batchSize < 1 {
		p.batchSize = 100
	}
	if p.workers < 1 {
		p.workers = 1
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 100 * time.Millisecond
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Start builds one chain per worker and starts the dispatcher and workers.
// They stop, flushing pending batches, once ctx is done; Wait blocks until then.
func (p *Pipeline) Start(ctx context.Context) error {
	chains := make([]*ProcessorChain, p.workers)
	for i := range chains {
		c, err := p.newChain(i)
		if err != nil {
			return fmt.Errorf("build chain for worker %d: %w", i, err)
		}
		chains[i] = c
	}

	p.logger.Info("starting processing pipeline", "workers", p.workers, "batch_size", p.batchSize)
	jobs := make(chan []byte, p.batchSize)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.dispatch(ctx, jobs)
	}()
	for i, c := range chains {
		p.wg.Add(1)
		go func(id int, chain *ProcessorChain) {
			defer p.wg.Done()
			p.worker(ctx, id, chain, jobs)
		}(i, c)
	}
	return nil
}

// Wait blocks until every worker has flushed and exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Run starts the pipeline and blocks until ctx is done and workers exit.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	p.Wait()
	return nil
}

// dispatch is the single reader of the ring buffer. After ctx is done it
// keeps feeding workers until the buffer is empty, so nothing accepted
// before shutdown is lost.
func (p *Pipeline) dispatch(ctx context.Context, jobs chan<- []byte) {
	defer close(jobs)
	draining := 0
	for {
		item, ok := p.buffer.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				if draining > 0 {
					p.logger.Info("ingest buffer drained", "events", draining)
				}
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		if ctx.Err() != nil {
			draining++
		}
		// Workers only exit once jobs is closed.
		jobs <- item
	}
}

func (p *Pipeline) worker(ctx context.Context, id int, chain *ProcessorChain, jobs <-chan []byte) {
	// Reusable batch slice and event
	batch := make([][]byte, 0, p.batchSize)
	ev := model.NewEvent()
	// Events drained after cancellation still need menu lookups.
	pCtx := &ProcessingContext{Context: context.WithoutCancel(ctx), Logger: p.logger.With("worker", id), Worker: id}

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Pending events are still written after cancellation.
		if err := p.output.WriteBatch(context.WithoutCancel(ctx), batch); err != nil {
			p.logger.Error("output error", "error", err, "events", len(batch))
			if p.metrics != nil {
				p.metrics.OutputErrors.Inc()
			}
		}
		// Reset batch slice (keep capacity)
		batch = batch[:0]
	}

	for {
		select {
		case raw, ok := <-jobs:
			if !ok {
				flush()
				return
			}
			if out := p.handle(pCtx, chain, ev, raw); out != nil {
				batch = append(batch, out)
			}
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// handle runs one raw event through the chain and returns its encoded form
// if it was accepted.
func (p *Pipeline) handle(pCtx *ProcessingContext, chain *ProcessorChain, ev *model.Event, raw []byte) []byte {
	ev.Reset()
	if err := model.Decode(raw, ev); err != nil {
		p.fail(pCtx, metrics.OutcomeMalformed, err)
		return nil
	}

	drop, err := chain.Process(pCtx, ev)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, trigger.ErrResultsNotValid) || errors.Is(err, ErrMenuUnavailable) {
			outcome = metrics.OutcomeInvalid
		}
		p.fail(pCtx, outcome, err)
		return nil
	}
	if drop {
		return nil
	}

	out, err := model.Encode(ev)
	if err != nil {
		p.fail(pCtx, metrics.OutcomeError, err)
		return nil
	}
	return out
}

func (p *Pipeline) fail(pCtx *ProcessingContext, outcome string, err error) {
	if p.metrics != nil {
		p.metrics.Events.WithLabelValues(outcome).Inc()
	}
	p.errLog.Do(func() {
		pCtx.Logger.Error("event processing failed", "outcome", outcome, "error", err)
	})
}
