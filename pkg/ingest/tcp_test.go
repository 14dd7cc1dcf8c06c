package ingest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggergate/pkg/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func popWithin(t *testing.T, rb *engine.RingBuffer[[]byte], d time.Duration) []byte {
	t.Helper()
	var got []byte
	require.Eventually(t, func() bool {
		item, ok := rb.Pop()
		got = item
		return ok
	}, d, 5*time.Millisecond, "timed out waiting for message in buffer")
	return got
}

func TestTCPIngestor_Integration(t *testing.T) {
	rb, err := engine.NewRingBuffer[[]byte](1024)
	require.NoError(t, err)

	ingestor := NewTCPIngestor("127.0.0.1:0", rb, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ingestor.Run(ctx) }()
	<-ingestor.Ready()

	conn, err := net.Dial("tcp", ingestor.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{\"id\":\"a\"}\r\n\n{\"id\":\"b\"}\n"))
	require.NoError(t, err)

	assert.Equal(t, `{"id":"a"}`, string(popWithin(t, rb, time.Second)))
	assert.Equal(t, `{"id":"b"}`, string(popWithin(t, rb, time.Second)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ingestor did not stop")
	}
}

func TestTCPIngestor_LastLineWithoutNewline(t *testing.T) {
	rb, err := engine.NewRingBuffer[[]byte](16)
	require.NoError(t, err)

	ingestor := NewTCPIngestor("127.0.0.1:0", rb, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ingestor.Run(ctx) }()
	<-ingestor.Ready()

	conn, err := net.Dial("tcp", ingestor.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"id":"tail"}`))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Equal(t, `{"id":"tail"}`, string(popWithin(t, rb, time.Second)))
}

func TestTCPIngestor_OversizedLineClosesConnection(t *testing.T) {
	rb, err := engine.NewRingBuffer[[]byte](16)
	require.NoError(t, err)

	ingestor := NewTCPIngestor("127.0.0.1:0", rb, discardLogger())
	ingestor.maxLine = 32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ingestor.Run(ctx) }()
	<-ingestor.Ready()

	conn, err := net.Dial("tcp", ingestor.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{\"id\":\"ok\"}\n{\"id\":\"" + strings.Repeat("x", 64) + "\"}\n"))
	require.NoError(t, err)

	assert.Equal(t, `{"id":"ok"}`, string(popWithin(t, rb, time.Second)))

	// The server hangs up instead of buffering the long line.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	// EOF or a reset, depending on unread bytes; never the deadline.
	require.Error(t, err)
	assert.NotErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Equal(t, uint64(0), rb.Usage())
}
