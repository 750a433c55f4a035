package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/qredentials/internal/model"
)

// serveLogged はhandlerをLoggingMiddleware越しに1回呼び、出力された1行を返す。
func serveLogged(t *testing.T, handler http.Handler, req *http.Request) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewLoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_StatusAndLevel(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ダッシュボード表示", http.StatusOK, "INFO"},
		{"ログイン後のリダイレクト", http.StatusSeeOther, "INFO"},
		{"入力エラー", http.StatusUnprocessableEntity, "WARN"},
		{"CSRF拒否", http.StatusForbidden, "WARN"},
		{"プロバイダ停止", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}), httptest.NewRequest(http.MethodPost, "/login", nil))

			if got := int(entry["status"].(float64)); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["method"] != http.MethodPost || entry["path"] != "/login" {
				t.Errorf("method/path = %v %v, want POST /login", entry["method"], entry["path"])
			}
			if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
				t.Errorf("duration_ms = %v, want non-negative number", entry["duration_ms"])
			}
		})
	}
}

func TestLoggingMiddleware_BytesAndImplicitOK(t *testing.T) {
	entry := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
		w.Write([]byte(", world"))
	}), httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if got := int(entry["status"].(float64)); got != http.StatusOK {
		t.Errorf("status = %d, want 200", got)
	}
	if got := int(entry["bytes"].(float64)); got != len("hello, world") {
		t.Errorf("bytes = %d, want %d", got, len("hello, world"))
	}
}

func TestLoggingMiddleware_RequestIDAndRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set(chimw.RequestIDHeader, "req-abc")

	var entry map[string]any
	chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry = serveLogged(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), r)
	})).ServeHTTP(httptest.NewRecorder(), req)

	if entry["request_id"] != "req-abc" {
		t.Errorf("request_id = %v, want req-abc", entry["request_id"])
	}
	if entry["remote_ip"] != "203.0.113.7" {
		t.Errorf("remote_ip = %v, want 203.0.113.7", entry["remote_ip"])
	}
}

func TestLoggingMiddleware_UserID(t *testing.T) {
	resolver := &mockSessionResolver{
		ensureFn: func(context.Context, string) (*model.Session, bool, error) {
			return &model.Session{ID: "s1", ClientKey: "ck", UserID: "user-123"}, false, nil
		},
		resolveFn: func(context.Context, *model.Session) (model.SessionState, error) {
			return model.SessionState{Identity: &model.Identity{UID: "user-123"}}, nil
		},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("ログイン済みはuser_idを出す", func(t *testing.T) {
		entry := serveLogged(t, NewSessionMiddleware(resolver, testSessionConfig)(ok),
			httptest.NewRequest(http.MethodGet, "/api/session", nil))
		if entry["user_id"] != "user-123" {
			t.Errorf("user_id = %v, want user-123", entry["user_id"])
		}
	})

	t.Run("セッションなしはuser_idを出さない", func(t *testing.T) {
		entry := serveLogged(t, ok, httptest.NewRequest(http.MethodGet, "/health", nil))
		if _, found := entry["user_id"]; found {
			t.Errorf("user_id = %v, want absent", entry["user_id"])
		}
	})
}

// TestLoggingMiddleware_SupportsFlush はラップ後もSSEのFlushが届くことを検証する。
func TestLoggingMiddleware_SupportsFlush(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush() error = %v", err)
		}
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session/events", nil))

	if !w.Flushed {
		t.Error("recorder was not flushed")
	}
}

type statusCollector struct {
	statuses []int
}

func (c *statusCollector) RecordAuthAttempt(string, string)        {}
func (c *statusCollector) RecordFactRequest(string, time.Duration) {}
func (c *statusCollector) SubscriberAdded()                        {}
func (c *statusCollector) SubscriberRemoved()                      {}
func (c *statusCollector) RecordHTTPStatus(code int)               { c.statuses = append(c.statuses, code) }

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	col := &statusCollector{}
	handler := NewMetricsMiddleware(col)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))

	if len(col.statuses) != 2 || col.statuses[0] != http.StatusUnprocessableEntity {
		t.Errorf("statuses = %v, want [422 422]", col.statuses)
	}
}
