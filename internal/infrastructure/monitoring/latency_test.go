package monitoring

import (
	"testing"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/sandbox"
	"github.com/stretchr/testify/assert"
)

func TestLatencyWindowSummary(t *testing.T) {
	var w latencyWindow
	assert.Equal(t, LatencySummary{}, w.summary())

	w.add(7)
	s := w.summary()
	assert.Equal(t, 1, s.Samples)
	assert.Equal(t, 7.0, s.MeanMS)
	assert.Zero(t, s.StdDevMS)
	assert.Equal(t, 7.0, s.P50MS)

	w = latencyWindow{}
	for i := 100; i >= 1; i-- {
		w.add(float64(i))
	}
	s = w.summary()
	assert.Equal(t, 100, s.Samples)
	assert.InDelta(t, 50.5, s.MeanMS, 1e-9)
	assert.Equal(t, 50.0, s.P50MS)
	assert.Equal(t, 95.0, s.P95MS)
	assert.Equal(t, 100.0, s.MaxMS)
	assert.Greater(t, s.StdDevMS, 0.0)
}

func TestLatencyWindowWraps(t *testing.T) {
	var w latencyWindow
	for i := 0; i < latencyWindowSize; i++ {
		w.add(1000)
	}
	for i := 0; i < latencyWindowSize; i++ {
		w.add(1)
	}
	s := w.summary()
	assert.Equal(t, latencyWindowSize, s.Samples)
	assert.Equal(t, 1.0, s.MaxMS)
}

func TestSnapshotIncludesLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordExecution("execute", &sandbox.Result{Duration: 4 * time.Millisecond}, nil)
	m.RecordExecution("execute", &sandbox.Result{Duration: 8 * time.Millisecond}, nil)
	m.RecordExecution("execute", nil, sandbox.ErrPoolClosed)

	s := m.Snapshot().Latency
	assert.Equal(t, 2, s.Samples)
	assert.InDelta(t, 6.0, s.MeanMS, 1e-9)
	assert.Equal(t, 8.0, s.MaxMS)
}
