package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRouteAndStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/ok", nil),
		httptest.NewRequest(http.MethodPost, "/v1/teapot", nil),
		httptest.NewRequest(http.MethodPost, "/v1/teapot", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Equal(t, float64(1), testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, float64(2), testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "418")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
