package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"triggergate/pkg/menu"
	"triggergate/pkg/metrics"
	"triggergate/pkg/model"
	"triggergate/pkg/trigger"
)

// ErrMenuUnavailable is returned when an event refers to a menu version
// whose names are neither inline nor in the menu store.
var ErrMenuUnavailable = errors.New("trigger menu unavailable")

// TriggerFilterConfig configures one TriggerFilter instance.
type TriggerFilterConfig struct {
	Name string

	// Results selects the trigger results product of each event.
	Results model.InputTag

	// Registry is shared read-only between all filter instances.
	Registry *trigger.Registry

	// Menus resolves menu versions for events that carry no names. Optional.
	Menus menu.Store

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// TriggerFilter drops events whose trigger results do not pass the
// configured pass/veto/ignore rules and attaches the triggersFired bitmask
// to the ones that do. It owns a resolver cache and must not be shared
// between workers.
type TriggerFilter struct {
	name     string
	results  model.InputTag
	registry *trigger.Registry
	resolver *trigger.Resolver
	menus    menu.Store
	metrics  *metrics.Metrics

	// menuLen is the name count of the menu the resolver was built for.
	menuLen int
}

func NewTriggerFilter(cfg TriggerFilterConfig) *TriggerFilter {
	name := cfg.Name
	if name == "" {
		name = "trigger_filter"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerFilter{
		name:     name,
		results:  cfg.Results,
		registry: cfg.Registry,
		resolver: trigger.NewResolver(cfg.Registry, logger.With("component", name)),
		menus:    cfg.Menus,
		metrics:  cfg.Metrics,
	}
}

func (f *TriggerFilter) Name() string {
	return f.name
}

func (f *TriggerFilter) Process(ctx *ProcessingContext, ev *model.Event) (bool, error) {
	results, ok := ev.Product(f.results)
	if !ok || !results.Valid {
		return true, fmt.Errorf("event %s: %s: %w", ev.ID, f.results, trigger.ErrResultsNotValid)
	}

	m := results.Menu()
	if !f.resolver.Fresh(m.Version) {
		if len(m.Names) == 0 && f.menus != nil {
			names, err := f.menus.Names(ctx, m.Version)
			if err != nil {
				return true, fmt.Errorf("event %s: menu %q: %w: %w", ev.ID, m.Version, ErrMenuUnavailable, err)
			}
			m.Names = names
		}
		f.rebuild(m)
	}
	if len(results.Accepted) < f.menuLen {
		return true, fmt.Errorf("event %s: %d results for %d triggers: %w", ev.ID, len(results.Accepted), f.menuLen, trigger.ErrResultsNotValid)
	}

	accepted, fired := trigger.Evaluate(results, f.resolver.Resolve(m), f.registry.Len())
	switch {
	case fired == nil:
		f.count(metrics.OutcomeVetoed)
		return true, nil
	case !accepted:
		f.count(metrics.OutcomeRejected)
		return true, nil
	}

	ev.TriggersFired = fired
	f.count(metrics.OutcomeAccepted)
	f.countFired(fired)
	return false, nil
}

func (f *TriggerFilter) rebuild(m trigger.Menu) {
	f.resolver.Resolve(m)
	f.menuLen = len(m.Names)
	if f.metrics != nil {
		f.metrics.MenuRebuilds.Inc()
		f.metrics.UnmatchedTriggers.Add(float64(f.resolver.Unmatched()))
	}
}

func (f *TriggerFilter) count(outcome string) {
	if f.metrics != nil {
		f.metrics.Events.WithLabelValues(outcome).Inc()
	}
}

func (f *TriggerFilter) countFired(fired trigger.Bitmask) {
	if f.metrics == nil {
		return
	}
	for ordinal, on := range fired {
		if !on {
			continue
		}
		if e, ok := f.registry.Entry(uint32(ordinal)); ok {
			f.metrics.TriggersFired.WithLabelValues(e.Name).Inc()
		}
	}
}
