package engine

import (
	"context"
	"log/slog"
)

// ProcessingContext holds per-worker state handed to every processor.
// It wraps standard context.Context.
type ProcessingContext struct {
	context.Context
	Logger *slog.Logger
	Worker int
}
