package trigger

import (
	"log/slog"
)

// Menu is the runtime list of trigger names for an event. Version is an
// opaque token: equal versions mean equal name lists.
type Menu struct {
	Version string
	Names   []string
}

// Binding ties a runtime trigger position to the rule it matched.
type Binding struct {
	Category     Category
	Ordinal      uint32
	RuntimeIndex int
}

// Resolver caches the bindings for the most recently seen menu version.
// It is not safe for concurrent use; give each worker its own Resolver.
type Resolver struct {
	registry *Registry
	logger   *slog.Logger

	version    string
	hasVersion bool
	bindings   []Binding
	unmatched  int
	rebuilds   uint64
}

// NewResolver creates a resolver over a shared, read-only registry.
func NewResolver(registry *Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		registry: registry,
		logger:   logger,
	}
}

// Fresh reports whether the cached bindings were built for version.
func (r *Resolver) Fresh(version string) bool {
	return r.hasVersion && r.version == version
}

// Resolve returns the bindings for menu, rebuilding them only when the menu
// version differs from the cached one. The returned slice is owned by the
// resolver and is valid until the next rebuild.
func (r *Resolver) Resolve(menu Menu) []Binding {
	if r.Fresh(menu.Version) {
		return r.bindings
	}
	r.rebuild(menu)
	return r.bindings
}

func (r *Resolver) rebuild(menu Menu) {
	r.bindings = make([]Binding, 0, len(menu.Names))
	r.unmatched = 0
	r.logger.Info("trigger names changed", "menu_version", menu.Version, "names", len(menu.Names))

	for i, name := range menu.Names {
		entry, ok := r.registry.SearchPrefix(name)
		if !ok {
			r.unmatched++
			r.logger.Info("trigger did not match any pass or veto trigger", "trigger", name)
			continue
		}
		r.bindings = append(r.bindings, Binding{
			Category:     entry.Category,
			Ordinal:      entry.Ordinal,
			RuntimeIndex: i,
		})
		r.logger.Info("trigger matched",
			"trigger", name,
			"type", entry.Category.String(),
			"rule", entry.Name,
			"index", entry.Ordinal,
		)
	}

	r.version = menu.Version
	r.hasVersion = true
	r.rebuilds++
}

// Unmatched is the number of runtime names in the current menu that matched
// no rule.
func (r *Resolver) Unmatched() int {
	return r.unmatched
}

// Rebuilds counts how many times the bindings were rebuilt.
func (r *Resolver) Rebuilds() uint64 {
	return r.rebuilds
}
