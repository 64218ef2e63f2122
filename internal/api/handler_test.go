//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusInternalServerError, "Aviya had trouble replying.")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "Aviya had trouble replying." {
		t.Errorf("Unexpected error body: %v", got)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantBody   HealthResponse
	}{
		{
			name: "all healthy",
			checks: map[string]Pinger{
				"database": pingFunc(func(context.Context) error { return nil }),
				"sessions": pingFunc(func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusOK,
			wantBody:   HealthResponse{Status: "ok", Checks: map[string]string{"database": "ok", "sessions": "ok"}},
		},
		{
			name: "session store down",
			checks: map[string]Pinger{
				"database": pingFunc(func(context.Context) error { return nil }),
				"sessions": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   HealthResponse{Status: "degraded", Checks: map[string]string{"database": "ok", "sessions": "unavailable"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.checks)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var got HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if got.Status != tt.wantBody.Status {
				t.Errorf("Expected status %q, got %q", tt.wantBody.Status, got.Status)
			}
			for k, v := range tt.wantBody.Checks {
				if got.Checks[k] != v {
					t.Errorf("Check %s: expected %q, got %q", k, v, got.Checks[k])
				}
			}
		})
	}
}
