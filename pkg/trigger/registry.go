// Package trigger matches runtime trigger names against operator configured
// rules and turns per-event trigger results into an accept/reject decision.
//
// A Registry is built once from the pass, veto and ignore lists and is
// immutable afterwards, so it may be shared by any number of workers. A
// Resolver caches the bindings of one runtime menu and must stay owned by a
// single worker.
package trigger

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// RuleEntry is one configured trigger rule.
type RuleEntry struct {
	Name     string
	Category Category
	// Ordinal is the position of Name in sorted order and indexes the
	// triggersFired bitmask.
	Ordinal uint32
}

// Registry holds the configured rules sorted by name.
type Registry struct {
	entries []RuleEntry
}

// Build creates a registry from the three configured lists. A name that
// appears more than once keeps the category of its first appearance, with
// pass names inserted before veto names and veto names before ignore names.
func Build(pass, veto, ignore []string) *Registry {
	seen := make(map[string]Category, len(pass)+len(veto)+len(ignore))
	insert := func(names []string, c Category) {
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = c
		}
	}
	insert(pass, Pass)
	insert(veto, Veto)
	insert(ignore, Ignore)

	entries := make([]RuleEntry, 0, len(seen))
	for n, c := range seen {
		entries = append(entries, RuleEntry{Name: n, Category: c})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for i := range entries {
		entries[i].Ordinal = uint32(i)
	}
	return &Registry{entries: entries}
}

// Len is the number of distinct configured names and the bitmask width.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the rules in ordinal order.
func (r *Registry) Entries() []RuleEntry {
	out := make([]RuleEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Entry returns the rule with the given ordinal.
func (r *Registry) Entry(ordinal uint32) (RuleEntry, bool) {
	if int(ordinal) >= len(r.entries) {
		return RuleEntry{}, false
	}
	return r.entries[ordinal], true
}

// Lookup finds a rule by exact name.
func (r *Registry) Lookup(name string) (RuleEntry, bool) {
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Name >= name })
	if i < len(r.entries) && r.entries[i].Name == name {
		return r.entries[i], true
	}
	return RuleEntry{}, false
}

// SearchPrefix returns the rule whose name is a prefix of name.
//
// Only one candidate is tested: the greatest configured name that sorts at
// or before name. If that candidate is not a prefix there is no match, even
// when a shorter configured name would have been one.
func (r *Registry) SearchPrefix(name string) (RuleEntry, bool) {
	ub := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Name > name })
	if ub == 0 {
		return RuleEntry{}, false
	}
	cand := r.entries[ub-1]
	if !strings.HasPrefix(name, cand.Name) {
		return RuleEntry{}, false
	}
	return cand, true
}

// WriteTable writes the ordinal/name/category listing.
func (r *Registry) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Index Trigger Type"); err != nil {
		return err
	}
	for _, e := range r.entries {
		if _, err := fmt.Fprintf(w, "%d %s %s\n", e.Ordinal, e.Name, e.Category); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary lists the rules by category, pass rules first.
func (r *Registry) WriteSummary(w io.Writer) error {
	byCategory := make(map[Category][]string, 3)
	for _, e := range r.entries {
		byCategory[e.Category] = append(byCategory[e.Category], e.Name)
	}

	var b strings.Builder
	b.WriteString("Triggering on events that pass the triggers:\n")
	for _, n := range byCategory[Pass] {
		b.WriteString(n + "\n")
	}
	if veto := byCategory[Veto]; len(veto) > 0 {
		b.WriteString("Except those that pass the triggers:\n")
		for _, n := range veto {
			b.WriteString(n + "\n")
		}
	} else {
		b.WriteString("No veto triggers.\n")
	}
	if ignore := byCategory[Ignore]; len(ignore) > 0 {
		b.WriteString("The following triggers are ignored, but the trigger decision will be saved:\n")
		for _, n := range ignore {
			b.WriteString(n + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// LogTable emits the listing once at startup.
func (r *Registry) LogTable(logger *slog.Logger) {
	logger.Info("setting up trigger filter", "triggers", len(r.entries))
	for _, e := range r.entries {
		logger.Info("trigger",
			"index", e.Ordinal,
			"name", e.Name,
			"type", e.Category.String(),
		)
	}
}
