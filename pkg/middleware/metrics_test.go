package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectMetric returns the first series of c whose labels include all of labels.
func collectMetric(c prometheus.Collector, labels map[string]string) *dto.Metric {
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		matched := 0
		for _, lp := range d.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return d
		}
	}
	return nil
}

func routerWith(mw func(http.Handler) http.Handler, pattern string, h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get(pattern, h)
	return r
}

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	r := routerWith(Metrics(), "/metrics-test/{lineItemId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics-test/"+id, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	m := collectMetric(httpRequestsTotal, map[string]string{
		"method": "GET", "route": "/metrics-test/{lineItemId}", "status": "202",
	})
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(3))

	h := collectMetric(httpRequestDuration, map[string]string{"route": "/metrics-test/{lineItemId}"})
	require.NotNil(t, h)
	assert.GreaterOrEqual(t, h.GetHistogram().GetSampleCount(), uint64(3))
}

func TestMetrics_DefaultStatusIs200(t *testing.T) {
	r := routerWith(Metrics(), "/metrics-default", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-default", nil))

	m := collectMetric(httpRequestsTotal, map[string]string{"route": "/metrics-default", "status": "200"})
	require.NotNil(t, m)
}

func TestMetrics_InFlightDuringRequest(t *testing.T) {
	var seen float64
	r := routerWith(Metrics(), "/metrics-inflight", func(w http.ResponseWriter, r *http.Request) {
		if m := collectMetric(httpRequestsInFlight, nil); m != nil {
			seen = m.GetGauge().GetValue()
		}
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-inflight", nil))
	assert.GreaterOrEqual(t, seen, float64(1))
}
