package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/qredentials/internal/model"
)

// --- モック定義 ---

type mockSessionResolver struct {
	ensureFn  func(ctx context.Context, id string) (*model.Session, bool, error)
	resolveFn func(ctx context.Context, sess *model.Session) (model.SessionState, error)
}

func (m *mockSessionResolver) EnsureSession(ctx context.Context, id string) (*model.Session, bool, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, id)
	}
	return &model.Session{ClientKey: "ck"}, id != "", nil
}

func (m *mockSessionResolver) Resolve(ctx context.Context, sess *model.Session) (model.SessionState, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sess)
	}
	return model.SessionState{}, nil
}

var testSessionConfig = SessionConfig{MaxAge: time.Hour}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestSessionMiddleware_ExistingSession_InjectsState(t *testing.T) {
	ident := &model.Identity{UID: "user-123", Email: "a@b.com"}
	resolver := &mockSessionResolver{
		ensureFn: func(_ context.Context, id string) (*model.Session, bool, error) {
			if id != "valid-session-id" {
				t.Errorf("EnsureSession id = %q, want %q", id, "valid-session-id")
			}
			return &model.Session{ID: id, ClientKey: "ck", UserID: "user-123"}, false, nil
		},
		resolveFn: func(context.Context, *model.Session) (model.SessionState, error) {
			return model.SessionState{Identity: ident}, nil
		},
	}

	var capturedUserID string
	var capturedSession *model.Session
	handler := NewSessionMiddleware(resolver, testSessionConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("UserIDFromContext() error = %v", err)
		}
		capturedUserID = userID
		capturedSession, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("user ID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedSession == nil || capturedSession.ID != "valid-session-id" {
		t.Errorf("session = %+v, want valid-session-id", capturedSession)
	}
	if findCookie(resp, SessionCookieName) != nil {
		t.Error("existing session should not be re-issued")
	}
}

func TestSessionMiddleware_Anonymous(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		wantCleared bool
	}{
		{name: "Cookieなしは何も発行しない"},
		{name: "期限切れのCookieは削除する", cookie: "expired-id", wantCleared: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var state model.SessionState
			var sess *model.Session
			handler := NewSessionMiddleware(&mockSessionResolver{}, testSessionConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				state, _ = StateFromContext(r.Context())
				sess, _ = SessionFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/login", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			cookie := findCookie(resp, SessionCookieName)
			switch {
			case tt.wantCleared && (cookie == nil || cookie.MaxAge >= 0):
				t.Errorf("cookie = %+v, want cleared", cookie)
			case !tt.wantCleared && cookie != nil:
				t.Errorf("cookie = %+v, want none for anonymous visitor", cookie)
			}
			if state.Resolving || state.Identity != nil {
				t.Errorf("state = %+v, want resolved anonymous", state)
			}
			if sess == nil || sess.Persisted() {
				t.Errorf("session = %+v, want unsaved anonymous", sess)
			}
		})
	}
}

func TestSetSessionCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, &model.Session{ID: "bound-session"}, testSessionConfig)

	cookie := findCookie(w.Result(), SessionCookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "bound-session" {
		t.Errorf("cookie value = %q, want %q", cookie.Value, "bound-session")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", cookie.MaxAge)
	}
}

func TestSessionMiddleware_Failures(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		resolver   *mockSessionResolver
		wantStatus int
		wantJSON   bool
	}{
		{
			name: "セッション確保の失敗はページで503",
			path: "/dashboard",
			resolver: &mockSessionResolver{ensureFn: func(context.Context, string) (*model.Session, bool, error) {
				return nil, false, errors.New("db down")
			}},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "プロバイダ解決の失敗はAPIでJSONの503",
			path: "/api/session",
			resolver: &mockSessionResolver{resolveFn: func(context.Context, *model.Session) (model.SessionState, error) {
				return model.SessionState{}, errors.New("provider unreachable")
			}},
			wantStatus: http.StatusServiceUnavailable,
			wantJSON:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewSessionMiddleware(tt.resolver, testSessionConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called {
				t.Error("next handler should not be called")
			}
			isJSON := w.Header().Get("Content-Type") == "application/json"
			if isJSON != tt.wantJSON {
				t.Errorf("JSON response = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}

func TestClearSessionCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearSessionCookie(w, testSessionConfig)

	cookie := findCookie(w.Result(), SessionCookieName)
	if cookie == nil {
		t.Fatal("cookie not set")
	}
	if cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Errorf("cookie = %+v, want expired empty cookie", cookie)
	}
}

func TestStateFromContext_WithoutMiddleware(t *testing.T) {
	state, ok := StateFromContext(context.Background())
	if ok {
		t.Error("ok = true, want false")
	}
	if !state.Resolving {
		t.Error("state should be resolving when no session was resolved")
	}
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("UserIDFromContext() error = nil, want error")
	}
}
