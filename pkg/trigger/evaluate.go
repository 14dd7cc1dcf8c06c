package trigger

import (
	"errors"
)

// ErrResultsNotValid is returned when an event's trigger results product is
// missing or unusable. Processing of that event stops.
var ErrResultsNotValid = errors.New("TriggerResults product not valid")

// Results exposes the per-event fired flags by runtime position.
type Results interface {
	Accept(i int) bool
}

// Bitmask records which configured triggers fired, indexed by ordinal.
type Bitmask []bool

// Evaluate applies the bindings to one event's results.
//
// A fired veto trigger rejects the event at once and no bitmask is returned.
// Otherwise the event is accepted when at least one pass trigger fired, and
// the bitmask has a bit set for every fired pass or ignore trigger.
func Evaluate(results Results, bindings []Binding, size int) (bool, Bitmask) {
	fired := make(Bitmask, size)
	accepted := false
	for _, b := range bindings {
		if !results.Accept(b.RuntimeIndex) {
			continue
		}
		fx := b.Category.effects()
		if fx&effectAbort != 0 {
			return false, nil
		}
		if fx&effectAccept != 0 {
			accepted = true
		}
		if fx&effectRecord != 0 {
			fired[b.Ordinal] = true
		}
	}
	return accepted, fired
}
