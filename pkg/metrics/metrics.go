// Package metrics holds the Prometheus instruments of the trigger filter and
// the HTTP endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeVetoed    = "vetoed"
	OutcomeInvalid   = "invalid"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// Metrics contains the filter instruments.
type Metrics struct {
	Events            *prometheus.CounterVec
	TriggersFired     *prometheus.CounterVec
	MenuRebuilds      prometheus.Counter
	UnmatchedTriggers prometheus.Counter
	OutputErrors      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggergate",
				Subsystem: "events",
				Name:      "total",
				Help:      "Events processed by outcome",
			},
			[]string{"outcome"},
		),
		TriggersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggergate",
				Subsystem: "triggers",
				Name:      "fired_total",
				Help:      "Accepted events per configured trigger that fired",
			},
			[]string{"trigger"},
		),
		MenuRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggergate",
			Subsystem: "menu",
			Name:      "rebuilds_total",
			Help:      "Trigger menu resolutions performed after a menu version change",
		}),
		UnmatchedTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggergate",
			Subsystem: "menu",
			Name:      "unmatched_triggers_total",
			Help:      "Runtime trigger names that matched no configured trigger, per resolution",
		}),
		OutputErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggergate",
			Subsystem: "output",
			Name:      "errors_total",
			Help:      "Failed output batch writes",
		}),
	}
}

// Register adds every instrument to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Events, m.TriggersFired, m.MenuRebuilds, m.UnmatchedTriggers, m.OutputErrors} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}

// BufferStats is implemented by the ingest ring buffer.
type BufferStats interface {
	Usage() uint64
	DroppedCount() uint64
}

// BufferCollectors exposes ring buffer occupancy and tail drops.
func BufferCollectors(buf BufferStats) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "triggergate",
			Subsystem: "buffer",
			Name:      "usage",
			Help:      "Raw events waiting in the ingest buffer",
		}, func() float64 { return float64(buf.Usage()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "triggergate",
			Subsystem: "buffer",
			Name:      "dropped_total",
			Help:      "Raw events dropped because the ingest buffer was full",
		}, func() float64 { return float64(buf.DroppedCount()) }),
	}
}

// Serve exposes reg on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
