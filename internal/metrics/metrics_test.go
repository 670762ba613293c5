package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.FramesAccepted.Add(3)
	m.FramesRejected.WithLabelValues("length").Inc()
	m.WorkerState.Set(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesRejected.WithLabelValues("length")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "csi_frames_accepted_total 3"))
	assert.True(t, strings.Contains(text, `csi_frames_rejected_total{reason="length"} 1`))
	assert.True(t, strings.Contains(text, "csi_worker_state 2"))
}

func TestIndependentRegistries(t *testing.T) {
	// Each recorder gets its own registry, so creating two must not panic
	a, b := New(), New()
	a.LinesRead.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LinesRead))
}
