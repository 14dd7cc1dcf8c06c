// Package ingest receives newline-delimited JSON events over TCP and UDP and
// hands them to the ingest buffer.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"triggergate/pkg/engine"
)

// MaxLineSize bounds a single event. A TCP peer sending a longer line is
// disconnected.
const MaxLineSize = 16 << 20

// TCPIngestor accepts connections carrying one JSON event per line.
type TCPIngestor struct {
	addr   string
	buffer *engine.RingBuffer[[]byte]
	logger *slog.Logger
	// maxLine caps a line; defaults to MaxLineSize.
	maxLine int

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func NewTCPIngestor(addr string, buffer *engine.RingBuffer[[]byte], logger *slog.Logger) *TCPIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPIngestor{
		addr:    addr,
		buffer:  buffer,
		logger:  logger.With("component", "tcp_ingest"),
		maxLine: MaxLineSize,
		ready:   make(chan struct{}),
	}
}

// Addr returns the bound address once Run is listening, or nil.
func (t *TCPIngestor) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Ready is closed once the listener is bound.
func (t *TCPIngestor) Ready() <-chan struct{} {
	return t.ready
}

// Run listens until ctx is done. Open connections are closed on return.
func (t *TCPIngestor) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
	close(t.ready)
	t.logger.Info("TCP ingestor listening", "addr", listener.Addr().String())

	var conns sync.WaitGroup
	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		conns.Wait()
	}()
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			t.logger.Warn("accept failed", "error", err)
			continue
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			t.handleConnection(connCtx, conn)
		}()
	}
}

func (t *TCPIngestor) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(64*1024, t.maxLine)), t.maxLine)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			// Scanner reuses its buffer. Tail drop when full; the buffer counts drops.
			_ = t.buffer.Push(bytes.Clone(line))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		t.logger.Warn("read failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}
