package engine

import (
	"triggergate/pkg/model"
)

// Processor defines the interface for any component that decides on or
// annotates events.
type Processor interface {
	// Process applies logic to the event.
	// It returns true if the event should be DROPPED, and any error. An error
	// is fatal to this event only; the pipeline drops it and continues.
	Process(ctx *ProcessingContext, ev *model.Event) (bool, error)

	// Name returns the identifier of the processor (for metrics/logging).
	Name() string
}
