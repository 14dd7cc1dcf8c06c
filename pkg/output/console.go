package output

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
)

// Output defines where accepted events go. Entries are newline-free JSON
// documents.
type Output interface {
	WriteBatch(ctx context.Context, entries [][]byte) error
}

// ConsoleOutput writes events as NDJSON, to stdout by default.
type ConsoleOutput struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewConsoleOutput() *ConsoleOutput {
	return NewWriterOutput(os.Stdout)
}

// NewWriterOutput writes events as NDJSON to w.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: bufio.NewWriter(w)}
}

func (c *ConsoleOutput) WriteBatch(_ context.Context, entries [][]byte) error {
	// Workers flush concurrently; keep lines whole.
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		if _, err := c.w.Write(entry); err != nil {
			return err
		}
		if err := c.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return c.w.Flush()
}
