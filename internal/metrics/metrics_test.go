package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_NoDuplicatePanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { Register(reg) })
}

func TestObserveExecution_IncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(JobsTotal.WithLabelValues("SUCCESS", "INLINE"))
	ObserveExecution("SUCCESS", "INLINE", 0.5)
	after := testutil.ToFloat64(JobsTotal.WithLabelValues("SUCCESS", "INLINE"))
	assert.Equal(t, before+1, after)
}

func TestNewServer_ServesMetricsAndHealthz(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	srv := NewServer("127.0.0.1:0", reg)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, Shutdown(ctx, srv))
}
