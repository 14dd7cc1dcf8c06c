package engine

import (
	"fmt"

	"triggergate/pkg/model"
)

// ProcessorChain manages a sequential list of processors.
// A chain may hold per-worker state and is not shared between workers.
type ProcessorChain struct {
	processors []Processor
}

// NewProcessorChain creates a chain with the given list of processors.
func NewProcessorChain(processors ...Processor) *ProcessorChain {
	return &ProcessorChain{
		processors: processors,
	}
}

// ChainFactory builds the chain owned by one pipeline worker.
type ChainFactory func(worker int) (*ProcessorChain, error)

// Process runs the event through all processors in the chain.
// It stops if a processor returns drop=true or an error.
func (c *ProcessorChain) Process(ctx *ProcessingContext, ev *model.Event) (bool, error) {
	for _, p := range c.processors {
		drop, err := p.Process(ctx, ev)
		if err != nil {
			return true, fmt.Errorf("%s: %w", p.Name(), err)
		}
		if drop {
			return true, nil
		}
	}
	return false, nil
}
