package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync"

	"triggergate/pkg/engine"
)

// UDPIngestor accepts datagrams holding one or more newline-separated events.
type UDPIngestor struct {
	addr   string
	buffer *engine.RingBuffer[[]byte]
	logger *slog.Logger

	mu    sync.Mutex
	conn  *net.UDPConn
	ready chan struct{}
}

func NewUDPIngestor(addr string, buffer *engine.RingBuffer[[]byte], logger *slog.Logger) *UDPIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPIngestor{
		addr:   addr,
		buffer: buffer,
		logger: logger.With("component", "udp_ingest"),
		ready:  make(chan struct{}),
	}
}

// Addr returns the bound address once Run is listening, or nil.
func (u *UDPIngestor) Addr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Ready is closed once the socket is bound.
func (u *UDPIngestor) Ready() <-chan struct{} {
	return u.ready
}

// Run reads datagrams until ctx is done.
func (u *UDPIngestor) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	close(u.ready)
	u.logger.Info("UDP ingestor listening", "addr", conn.LocalAddr().String())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			u.logger.Warn("read failed", "error", err)
			continue
		}
		u.push(buf[:n])
	}
}

// push copies each line out of the reused read buffer.
func (u *UDPIngestor) push(packet []byte) {
	for len(packet) > 0 {
		line := packet
		if i := bytes.IndexByte(packet, '\n'); i >= 0 {
			line, packet = packet[:i], packet[i+1:]
		} else {
			packet = nil
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			_ = u.buffer.Push(bytes.Clone(line))
		}
	}
}
