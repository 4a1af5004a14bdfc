package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "polygene")
	require.NoError(t, err)

	p.Started("order")
	p.Started("order")
	assert.Equal(t, 2.0, testutil.ToFloat64(p.open))

	p.Finished("order", OutcomeCompleted, 10*time.Millisecond)
	p.Conflict("order")
	p.Retry("order")
	p.Finished("order", OutcomeDiscarded, time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(p.open))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.started.WithLabelValues("order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.finished.WithLabelValues("order", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.finished.WithLabelValues("order", "discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.conflicts.WithLabelValues("order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retries.WithLabelValues("order")))

	n, err := testutil.GatherAndCount(reg, "polygene_unitofwork_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg, "polygene")
	require.NoError(t, err)
	_, err = NewPrometheus(reg, "polygene")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.Started("x")
	r.Finished("x", OutcomeFailed, time.Second)
	r.Conflict("x")
	r.Retry("x")
}
