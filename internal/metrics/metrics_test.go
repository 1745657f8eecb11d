package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountAndServe(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ConfessionsSubmitted.Inc()
	m.LikeToggles.WithLabelValues("like").Inc()
	m.LikeToggles.WithLabelValues("like").Inc()
	m.WebsocketClients.Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConfessionsSubmitted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LikeToggles.WithLabelValues("like")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "confessly_confessions_submitted_total 1")
	assert.Contains(t, string(body), "confessly_ws_clients 3")
}

func TestNewUsesIndependentRegistries(t *testing.T) {
	_, err := New()
	require.NoError(t, err)
	_, err = New()
	require.NoError(t, err)
}
