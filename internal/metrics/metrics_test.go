package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, pagesTotal)
	require.NotNil(t, jobsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(pagesTotal.WithLabelValues("detail", "blocked"))
	ObservePage("detail", "blocked")
	assert.Equal(t, before+1, testutil.ToFloat64(pagesTotal.WithLabelValues("detail", "blocked")))

	blocks := testutil.ToFloat64(rateLimitBlocksTotal)
	ObserveBlock()
	assert.Equal(t, blocks+1, testutil.ToFloat64(rateLimitBlocksTotal))

	saved := testutil.ToFloat64(itemsTotal.WithLabelValues("saved"))
	ObserveItem("saved")
	ObserveItem("saved")
	assert.Equal(t, saved+2, testutil.ToFloat64(itemsTotal.WithLabelValues("saved")))

	jobs := testutil.ToFloat64(jobsTotal.WithLabelValues("single-page", "completed"))
	ObserveJob("single-page", "completed")
	assert.Equal(t, jobs+1, testutil.ToFloat64(jobsTotal.WithLabelValues("single-page", "completed")))
}

func TestActiveJobsGauge(t *testing.T) {
	Init()
	start := testutil.ToFloat64(activeJobs)

	IncActiveJobs()
	assert.Equal(t, start+1, testutil.ToFloat64(activeJobs))
	DecActiveJobs()
	assert.Equal(t, start, testutil.ToFloat64(activeJobs))
}

func TestObserveDelay(t *testing.T) {
	ObserveDelay("cooldown", 10*time.Minute)
	assert.Positive(t, testutil.CollectAndCount(pacingDelaySeconds))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	missingBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/ok", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, missingBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")))
	assert.Positive(t, testutil.CollectAndCount(httpRequestDuration))
}

func TestHandlerServesMetrics(t *testing.T) {
	ObserveOutbox("published")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fragrance_outbox_events_total")
}
