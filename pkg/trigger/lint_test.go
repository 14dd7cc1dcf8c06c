package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	r := Build([]string{"HLT_Mu", "HLT_Mu50", "HLT_Ele"}, []string{"HLT_Mu50_IsoVVVL"}, nil)

	got := Overlaps(r)

	var pairs [][2]string
	for _, o := range got {
		pairs = append(pairs, [2]string{o.Prefix.Name, o.Longer.Name})
	}
	assert.Equal(t, [][2]string{
		{"HLT_Mu", "HLT_Mu50"},
		{"HLT_Mu", "HLT_Mu50_IsoVVVL"},
	}, pairs)
	assert.Equal(t, Veto, got[1].Longer.Category)
}

func TestOverlaps_None(t *testing.T) {
	assert.Empty(t, Overlaps(Build([]string{"HLT_A", "HLT_B"}, nil, nil)))
	assert.Empty(t, Overlaps(Build([]string{"HLT_A"}, nil, nil)))
	assert.Empty(t, Overlaps(Build(nil, nil, nil)))
}

func TestOverlaps_EmptyName(t *testing.T) {
	got := Overlaps(Build([]string{"", "HLT_A"}, nil, nil))

	if assert.Len(t, got, 1) {
		assert.Equal(t, "", got[0].Prefix.Name)
		assert.Equal(t, "HLT_A", got[0].Longer.Name)
	}
}

func TestOverlaps_OnlyLeadingMatches(t *testing.T) {
	pairs := func(r *Registry) [][2]string {
		var out [][2]string
		for _, o := range Overlaps(r) {
			out = append(out, [2]string{o.Prefix.Name, o.Longer.Name})
		}
		return out
	}

	tests := []struct {
		name  string
		rules []string
		want  [][2]string
	}{
		{"infix is not a prefix", []string{"BC", "ABCD"}, nil},
		{"suffix is not a prefix", []string{"X", "HLT_X"}, nil},
		{"shortest prefix wins", []string{"A", "AB", "ABC"}, [][2]string{{"A", "AB"}, {"A", "ABC"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pairs(Build(tt.rules, nil, nil)))
		})
	}
}
