package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantJSON bool
	}{
		{name: "ページは平文の500", path: "/dashboard"},
		{name: "APIはJSONの500", path: "/api/session", wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
			}
			isJSON := w.Header().Get("Content-Type") == "application/json"
			if isJSON != tt.wantJSON {
				t.Errorf("JSON = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}
