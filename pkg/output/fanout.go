package output

import (
	"context"
	"errors"
	"sync"
)

// FanOutOutput hands every batch to all of its outputs concurrently.
type FanOutOutput struct {
	outputs []Output
}

func NewFanOutOutput(outputs ...Output) *FanOutOutput {
	return &FanOutOutput{outputs: outputs}
}

// WriteBatch waits for every output and joins their errors. Entries are
// shared read-only between outputs.
func (f *FanOutOutput) WriteBatch(ctx context.Context, entries [][]byte) error {
	switch len(f.outputs) {
	case 0:
		return nil
	case 1:
		return f.outputs[0].WriteBatch(ctx, entries)
	}

	errs := make([]error, len(f.outputs))
	var wg sync.WaitGroup
	wg.Add(len(f.outputs))
	for i, out := range f.outputs {
		i, out := i, out
		go func() {
			defer wg.Done()
			errs[i] = out.WriteBatch(ctx, entries)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
