package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	r.PartitionsTotal.WithLabelValues("detected").Inc()
	r.PartitionsTotal.WithLabelValues("no_edges").Add(2)
	r.PairsComputed.Add(9)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.PartitionsTotal.WithLabelValues("detected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.PartitionsTotal.WithLabelValues("no_edges")))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.PairsComputed))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRouter(t *testing.T) {
	r := NewRegistry()
	r.LastModularity.Set(0.42)
	router := r.NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tgcd_last_modularity 0.42")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}
