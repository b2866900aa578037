package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"":                               "/",
		"/":                              "/",
		"/api/questionnaires/12":         "/api/questionnaires/:id",
		"/api/questionnaires/12/scoring": "/api/questionnaires/:id/scoring",
		"/healthz":                       "/healthz",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestInstrumentHandler_UsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/things/{id}", "418"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/things/{id}", "418"))
	assert.Equal(t, before+1, after)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordScoring("sum", true)
	RecordJob("dispatch_email", 0, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "mindtrack_scoring_evaluations_total"))
	assert.True(t, strings.Contains(body, "mindtrack_scheduler_job_runs_total"))
}
