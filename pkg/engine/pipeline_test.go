package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"triggergate/pkg/metrics"
	"triggergate/pkg/model"
	"triggergate/pkg/trigger"
)

// MockOutput captures writes for verification
type MockOutput struct {
	mu       sync.Mutex
	captured [][]byte
	err      error
}

func (m *MockOutput) WriteBatch(_ context.Context, entries [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		c := make([]byte, len(e))
		copy(c, e)
		m.captured = append(m.captured, c)
	}
	return m.err
}

func (m *MockOutput) Captured() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.captured...)
}

func eventsTotal(m *metrics.Metrics) float64 {
	var n float64
	for _, o := range []string{metrics.OutcomeAccepted, metrics.OutcomeRejected, metrics.OutcomeVetoed, metrics.OutcomeInvalid, metrics.OutcomeMalformed, metrics.OutcomeError} {
		n += testutil.ToFloat64(m.Events.WithLabelValues(o))
	}
	return n
}

func filterChains(m *metrics.Metrics) ChainFactory {
	reg := trigger.Build([]string{"HLT_Mu"}, []string{"HLT_Bad"}, nil)
	return func(worker int) (*ProcessorChain, error) {
		return NewProcessorChain(NewTriggerFilter(TriggerFilterConfig{
			Results:  model.DefaultTriggerResults,
			Registry: reg,
			Metrics:  m,
			Logger:   discardLogger(),
		})), nil
	}
}

func TestPipeline_Integration(t *testing.T) {
	buf, err := NewRingBuffer[[]byte](128)
	require.NoError(t, err)
	out := &MockOutput{}
	m := metrics.New()

	p := NewPipeline(buf, filterChains(m), out, PipelineOptions{
		Workers:       2,
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
		Metrics:       m,
		Logger:        discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))

	const product = `"products":{"TriggerResults::HLT":{"menu_version":"V1","menu":["HLT_Mu_v1","HLT_Bad_v2","HLT_Other_v1"],`
	require.NoError(t, buf.Push([]byte(`{"id":"good",`+product+`"accept":[true,false,true]}}}`)))
	require.NoError(t, buf.Push([]byte(`{"id":"vetoed",`+product+`"accept":[true,true,true]}}}`)))
	require.NoError(t, buf.Push([]byte(`{"id":"rejected",`+product+`"accept":[false,false,true]}}}`)))
	require.NoError(t, buf.Push([]byte(`{"id":"invalid",`+product+`"accept":[true],"valid":false}}}`)))
	require.NoError(t, buf.Push([]byte(`not json`)))

	require.Eventually(t, func() bool {
		return eventsTotal(m) == 5
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(out.Captured()) == 1 }, time.Second, 5*time.Millisecond)

	got := out.Captured()[0]
	assert.Equal(t, "good", gjson.GetBytes(got, "id").String())
	assert.JSONEq(t, `[false,true]`, gjson.GetBytes(got, "triggersFired").Raw)

	for outcome, want := range map[string]float64{
		metrics.OutcomeAccepted:  1,
		metrics.OutcomeVetoed:    1,
		metrics.OutcomeRejected:  1,
		metrics.OutcomeInvalid:   1,
		metrics.OutcomeMalformed: 1,
	} {
		assert.Equal(t, want, testutil.ToFloat64(m.Events.WithLabelValues(outcome)), outcome)
	}

	cancel()
	p.Wait()
}

func TestPipeline_FlushesOnShutdown(t *testing.T) {
	buf, err := NewRingBuffer[[]byte](16)
	require.NoError(t, err)
	out := &MockOutput{}

	p := NewPipeline(buf, filterChains(nil), out, PipelineOptions{
		Workers:       1,
		BatchSize:     100,
		FlushInterval: time.Hour,
		Logger:        discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, buf.Push([]byte(`{"id":"a","products":{"TriggerResults::HLT":{"menu_version":"V1","menu":["HLT_Mu_v1"],"accept":[true]}}}`)))
	require.Eventually(t, func() bool { return buf.Usage() == 0 }, time.Second, time.Millisecond)
	// Give the worker a moment to take the event off the job channel.
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	assert.Len(t, out.Captured(), 1)
}

func TestPipeline_DrainsBufferOnShutdown(t *testing.T) {
	const events = 1000
	buf, err := NewRingBuffer[[]byte](1024)
	require.NoError(t, err)
	for i := 0; i < events; i++ {
		require.NoError(t, buf.Push([]byte(`{"products":{"TriggerResults::HLT":{"menu_version":"V1","menu":["HLT_Mu_v1"],"accept":[true]}}}`)))
	}

	out := &MockOutput{}
	m := metrics.New()
	p := NewPipeline(buf, filterChains(m), out, PipelineOptions{
		Workers:       2,
		BatchSize:     50,
		FlushInterval: time.Hour,
		Metrics:       m,
		Logger:        discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	p.Wait()

	assert.Equal(t, uint64(0), buf.Usage())
	assert.Equal(t, float64(events), eventsTotal(m))
	assert.Len(t, out.Captured(), events)
}

func TestPipeline_OutputErrorsCounted(t *testing.T) {
	buf, err := NewRingBuffer[[]byte](16)
	require.NoError(t, err)
	out := &MockOutput{err: errors.New("sink down")}
	m := metrics.New()

	p := NewPipeline(buf, filterChains(m), out, PipelineOptions{
		BatchSize: 1,
		Metrics:   m,
		Logger:    discardLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))

	require.NoError(t, buf.Push([]byte(`{"id":"a","products":{"TriggerResults::HLT":{"menu_version":"V1","menu":["HLT_Mu_v1"],"accept":[true]}}}`)))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.OutputErrors) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	p.Wait()
}

func TestPipeline_ChainFactoryError(t *testing.T) {
	buf, err := NewRingBuffer[[]byte](16)
	require.NoError(t, err)
	boom := errors.New("boom")

	p := NewPipeline(buf, func(int) (*ProcessorChain, error) { return nil, boom }, &MockOutput{}, PipelineOptions{Logger: discardLogger()})
	assert.ErrorIs(t, p.Start(context.Background()), boom)
}
