package identity

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/qredentials/internal/model"
)

// --- モック定義 ---

type mockProvider struct {
	signInFn  func(ctx context.Context, email, password string) (*model.Identity, error)
	signUpFn  func(ctx context.Context, email, password string) (*model.Identity, error)
	signOutFn func(ctx context.Context, uid string) error
	lookupFn  func(ctx context.Context, uid string) (*model.Identity, error)

	mu    sync.Mutex
	calls int
}

func (m *mockProvider) called() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	m.called()
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, model.NewAuthError("signin", model.AuthErrInvalidCredentials, nil)
}

func (m *mockProvider) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	m.called()
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return nil, model.NewAuthError("signup", model.AuthErrUnknown, nil)
}

func (m *mockProvider) SignOut(ctx context.Context, uid string) error {
	m.called()
	if m.signOutFn != nil {
		return m.signOutFn(ctx, uid)
	}
	return nil
}

func (m *mockProvider) Lookup(ctx context.Context, uid string) (*model.Identity, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, uid)
	}
	return nil, nil
}

// memorySessionRepo はテスト用のインメモリSessionRepository。
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	createFn func(session *model.Session) error
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]model.Session)}
}

func (r *memorySessionRepo) Create(_ context.Context, session *model.Session) error {
	if r.createFn != nil {
		if err := r.createFn(session); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *memorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

func (r *memorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (r *memorySessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
