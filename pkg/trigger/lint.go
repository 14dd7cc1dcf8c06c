package trigger

import (
	"sort"

	ac "github.com/petar-dambovaliev/aho-corasick"
)

// Overlap reports a configured rule that is a proper prefix of another one.
// Runtime names under Longer never fall back to Prefix, and runtime names that
// sort between the two may be tested against Longer only.
type Overlap struct {
	Prefix RuleEntry
	Longer RuleEntry
}

// Overlaps lists, for every configured rule, the shortest other configured
// rule that is a proper prefix of it.
func Overlaps(r *Registry) []Overlap {
	if r.Len() < 2 {
		return nil
	}

	// Leftmost-first picks, among matches starting at offset 0, the pattern
	// listed first, so listing shorter names first yields the shortest prefix.
	byLength := r.Entries()
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i].Name) < len(byLength[j].Name) })

	// The empty name is a prefix of everything and cannot be an automaton pattern.
	var empty *RuleEntry
	if byLength[0].Name == "" {
		empty = &byLength[0]
		byLength = byLength[1:]
	}
	patterns := make([]string, len(byLength))
	for i, e := range byLength {
		patterns[i] = e.Name
	}

	builder := ac.NewAhoCorasickBuilder(ac.Opts{
		MatchKind: ac.LeftMostFirstMatch,
	})
	automaton := builder.Build(patterns)

	var out []Overlap
	for _, e := range r.entries {
		if empty != nil {
			if e.Name != "" {
				out = append(out, Overlap{Prefix: *empty, Longer: e})
			}
			continue
		}
		for _, m := range automaton.FindAll(e.Name) {
			if m.Start() != 0 {
				break
			}
			p := byLength[m.Pattern()]
			if p.Name != e.Name {
				out = append(out, Overlap{Prefix: p, Longer: e})
			}
			break
		}
	}
	return out
}
