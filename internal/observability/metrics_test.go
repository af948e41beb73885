package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSampleQueues(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMetrics(prometheus.NewRegistry())
	persist := make(chan int, 8)
	persist <- 1
	persist <- 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.SampleQueues(ctx, time.Hour, map[string]QueueProbe{
			"persist": func() (int, int) { return len(persist), cap(persist) },
		})
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ChannelCapacity.WithLabelValues("persist")) == 8
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ChannelSize.WithLabelValues("persist")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.ChannelUtilization.WithLabelValues("persist")))

	cancel()
	require.NoError(t, <-done)
}
