package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/aviya/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Post("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	r.Get("/quiet", func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name     string
		method   string
		path     string
		endpoint string
		status   string
	}{
		{"pattern not raw path", http.MethodPost, "/items/42", "/items/{id}", "201"},
		{"implicit ok", http.MethodGet, "/quiet", "/quiet", "200"},
		{"no route", http.MethodGet, "/nowhere", "unmatched", "404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := metrics.RequestCount.WithLabelValues(tt.method, tt.endpoint, tt.status)
			before := testutil.ToFloat64(counter)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}

	assert.Zero(t, testutil.ToFloat64(metrics.RequestCount.WithLabelValues(http.MethodPost, "/items/42", "201")),
		"raw paths must not become label values")
}
