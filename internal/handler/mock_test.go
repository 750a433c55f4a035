package handler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/qredentials/internal/dashboard"
	"github.com/hitoshi/qredentials/internal/form"
	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/security"
	"github.com/hitoshi/qredentials/internal/view"
)

// --- モック定義 ---

type mockAuthenticator struct {
	loginFn    func(ctx context.Context, sess *model.Session, in form.LoginInput) (*model.Identity, *model.Session, error)
	registerFn func(ctx context.Context, sess *model.Session, in form.RegisterInput) (*model.Identity, *model.Session, error)
	logoutFn   func(ctx context.Context, sess *model.Session) error
}

func (m *mockAuthenticator) Login(ctx context.Context, sess *model.Session, in form.LoginInput) (*model.Identity, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, sess, in)
	}
	return nil, nil, nil
}

func (m *mockAuthenticator) Register(ctx context.Context, sess *model.Session, in form.RegisterInput) (*model.Identity, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, sess, in)
	}
	return nil, nil, nil
}

func (m *mockAuthenticator) Logout(ctx context.Context, sess *model.Session) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sess)
	}
	return nil
}

type mockSubscriber struct {
	subscribeFn func(ctx context.Context, sess *model.Session) (<-chan model.SessionState, error)
}

func (m *mockSubscriber) Subscribe(ctx context.Context, sess *model.Session) (<-chan model.SessionState, error) {
	return m.subscribeFn(ctx, sess)
}

type mockComposer struct {
	mu        sync.Mutex
	calls     int
	composeFn func(ctx context.Context, id *model.Identity) (*dashboard.View, error)
}

func (m *mockComposer) Compose(ctx context.Context, id *model.Identity) (*dashboard.View, error) {
	m.mu.Lock()
	m.calls++
	fn := m.composeFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return &dashboard.View{Email: id.Email, UserID: id.UID, Fact: "A fact."}, nil
}

// setComposeFn はサーバー稼働中に差し替えるためのセッター。
func (m *mockComposer) setComposeFn(fn func(ctx context.Context, id *model.Identity) (*dashboard.View, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.composeFn = fn
}

func (m *mockComposer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAvatarFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (*security.Image, error)
}

func (m *mockAvatarFetcher) Fetch(ctx context.Context, rawURL string) (*security.Image, error) {
	return m.fetchFn(ctx, rawURL)
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.err
}

// --- ヘルパー ---

var testCookies = middleware.SessionConfig{MaxAge: 24 * time.Hour}

func newTestRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	r, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func testIdentity() *model.Identity {
	return &model.Identity{
		UID:       "u123",
		Email:     "a@b.com",
		CreatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func anonymousSession() *model.Session {
	return &model.Session{
		ID:        "session-anon",
		ClientKey: "client-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// withSession はセッションミドルウェアを通過した状態のリクエストを作る。
func withSession(r *http.Request, sess *model.Session, state model.SessionState) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), sess, state))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
