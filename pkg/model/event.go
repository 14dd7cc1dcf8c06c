package model

import (
	"time"

	"triggergate/pkg/trigger"
)

// TriggerResults is the upstream trigger decision product of one event.
type TriggerResults struct {
	// MenuVersion identifies the list of trigger names the accept flags refer to.
	MenuVersion string

	// MenuNames is optional; when empty the names are looked up by MenuVersion.
	MenuNames []string

	// Accepted holds one fired flag per runtime trigger position.
	Accepted []bool

	// Valid is false when the producer marked the product unusable.
	Valid bool
}

// Accept reports whether the trigger at runtime position i fired.
// Positions outside the vector never fired.
func (r *TriggerResults) Accept(i int) bool {
	return i >= 0 && i < len(r.Accepted) && r.Accepted[i]
}

// Menu returns the runtime menu carried by the product.
func (r *TriggerResults) Menu() trigger.Menu {
	return trigger.Menu{Version: r.MenuVersion, Names: r.MenuNames}
}

// Event is a single collision event flowing through the pipeline.
// Workers reuse one Event across iterations via Reset.
type Event struct {
	// ID identifies the event in outputs.
	ID string

	// Timestamp is the time the event was decoded.
	Timestamp time.Time

	// Raw is the event as received.
	Raw []byte

	// Products holds the trigger result products keyed by their input tag.
	Products map[InputTag]*TriggerResults

	// TriggersFired is set by the trigger filter on accepted events.
	TriggersFired trigger.Bitmask
}

// NewEvent allocates an empty event.
func NewEvent() *Event {
	return &Event{Products: make(map[InputTag]*TriggerResults)}
}

// Product returns the trigger results stored under tag, if any.
func (e *Event) Product(tag InputTag) (*TriggerResults, bool) {
	p, ok := e.Products[tag]
	return p, ok
}

// Reset clears the Event for reuse.
func (e *Event) Reset() {
	e.ID = ""
	e.Timestamp = time.Time{}
	e.Raw = e.Raw[:0]
	clear(e.Products)
	e.TriggersFired = nil
}
