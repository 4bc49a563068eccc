package api

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantCode int
		wantType string
	}{
		{"encodable", map[string]float64{"value": 1.5}, http.StatusOK, "application/json"},
		{"infinite value", map[string]float64{"value": math.Inf(1)}, http.StatusInternalServerError, "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.value)
			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if got := w.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if w.Body.Len() == 0 {
				t.Error("expected a response body")
			}
		})
	}
}
