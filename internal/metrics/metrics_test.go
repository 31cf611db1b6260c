package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	rtsup "contextbot/internal/runtime/supervisor"
	logx "contextbot/pkg/logx"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Iteration()
	m.Failed(time.Second)
	m.Triggered("a")
	m.Fed("a", 3, 2)
	require.Nil(t, m.Registry())
}

func TestRecording(t *testing.T) {
	m := New()
	m.Iteration()
	m.Iteration()
	m.Failed(1500 * time.Millisecond)
	m.Triggered("dev")
	m.Fed("dev", 4, 3)
	m.Fed("dev", 1, 2)

	require.Equal(t, 2.0, testutil.ToFloat64(m.iterations))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors))
	require.Equal(t, 1.5, testutil.ToFloat64(m.backoff))
	require.Equal(t, 1.0, testutil.ToFloat64(m.triggers.WithLabelValues("dev")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.fed.WithLabelValues("dev")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.recent.WithLabelValues("dev")))
}

func TestServerExposesMetrics(t *testing.T) {
	m := New()
	m.Iteration()

	sup := rtsup.New(context.Background())
	srv := NewServer(m, "127.0.0.1:0", logx.Logger{})
	srv.Start(sup)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sup.Stop(ctx))
	}()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "contextbot_iterations_total 1")
}

func TestIsLoopbackAddr(t *testing.T) {
	require.True(t, isLoopbackAddr("127.0.0.1:9464"))
	require.True(t, isLoopbackAddr("localhost:1"))
	require.False(t, isLoopbackAddr("0.0.0.0:9464"))
	require.False(t, isLoopbackAddr("bad"))
}
