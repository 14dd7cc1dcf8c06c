package trigger

import (
	"fmt"
	"strings"
)

// Category controls how a fired trigger affects the event decision.
type Category uint8

const (
	// Pass triggers accept the event unless a veto fired.
	Pass Category = iota
	// Veto triggers reject the event unconditionally.
	Veto
	// Ignore triggers are recorded in the bitmask but never change the decision.
	Ignore
)

func (c Category) String() string {
	switch c {
	case Pass:
		return "pass"
	case Veto:
		return "veto"
	case Ignore:
		return "ignored"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// ParseCategory accepts the names produced by String plus "ignore".
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass":
		return Pass, nil
	case "veto":
		return Veto, nil
	case "ignore", "ignored":
		return Ignore, nil
	}
	return 0, fmt.Errorf("unknown trigger category %q", s)
}

// effect is the set of actions a fired trigger of some category performs.
type effect uint8

const (
	effectAbort effect = 1 << iota
	effectAccept
	effectRecord
)

var categoryEffects = [...]effect{
	Pass:   effectAccept | effectRecord,
	Veto:   effectAbort,
	Ignore: effectRecord,
}

func (c Category) effects() effect {
	if int(c) >= len(categoryEffects) {
		return 0
	}
	return categoryEffects[c]
}
