// Package identity はブラウザ単位のセッションと認証状態を管理するセッションストアを提供する。
// 「誰がログインしているか」の唯一の情報源であり、状態の変化を購読者へ配信する。
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/qredentials/internal/form"
	"github.com/hitoshi/qredentials/internal/metrics"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/repository"
)

// Provider は外部認証プロバイダのインターフェース。
// 返すエラーは*model.AuthErrorとして分類済みであること。
type Provider interface {
	// SignIn はメールアドレスとパスワードで認証する。
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	// SignUp はアカウントを作成し、作成されたプリンシパルを返す。
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	// SignOut はプロバイダ側のサインアウトを行う。
	SignOut(ctx context.Context, uid string) error
	// Lookup はプリンシパルの現在の情報を返す。
	// 削除済み・無効化済みの場合はnil, nilを返す。
	Lookup(ctx context.Context, uid string) (*model.Identity, error)
}

// Config はセッションストアの設定。
type Config struct {
	SessionMaxAge time.Duration
}

// Store はセッションストア。
type Store struct {
	provider Provider
	sessions repository.SessionRepository
	broker   Broker
	metrics  metrics.MetricsCollector
	config   Config

	now func() time.Time
}

// NewStore はStoreを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewStore(
	provider Provider,
	sessions repository.SessionRepository,
	broker Broker,
	collector metrics.MetricsCollector,
	config Config,
) *Store {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Store{
		provider: provider,
		sessions: sessions,
		broker:   broker,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// EnsureSession はIDに対応する有効なセッションを返す。
// IDが空・不明・期限切れの場合は保存しない匿名セッションを返し、渡されたIDは採用しない。
// staleはIDが渡されたのに有効なセッションが無かったことを示す。呼び出し側は古いCookieを消す。
func (s *Store) EnsureSession(ctx context.Context, id string) (sess *model.Session, stale bool, err error) {
	if id != "" {
		sess, err = s.sessions.FindByID(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find session: %w", err)
		}
		if sess != nil {
			return sess, false, nil
		}
	}

	return &model.Session{ClientKey: uuid.NewString(), CreatedAt: s.now()}, id != "", nil
}

// Resolve はセッションのプリンシパルをプロバイダに問い合わせ、解決済みの状態を返す。
// プロバイダが報告しなくなったプリンシパルのセッションは破棄し、未ログイン状態を配信する。
func (s *Store) Resolve(ctx context.Context, sess *model.Session) (model.SessionState, error) {
	if sess == nil || sess.Anonymous() {
		return model.SessionState{}, nil
	}

	ident, err := s.provider.Lookup(ctx, sess.UserID)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("failed to resolve session: %w", err)
	}
	if ident != nil {
		return model.SessionState{Identity: ident}, nil
	}

	slog.Info("principal no longer reported by provider, dropping session",
		slog.String("user_id", sess.UserID),
	)
	if err := s.sessions.DeleteByID(ctx, sess.ID); err != nil {
		return model.SessionState{}, fmt.Errorf("failed to drop session: %w", err)
	}
	s.publish(ctx, sess.ClientKey, model.SessionState{})
	return model.SessionState{}, nil
}

// Subscribe はセッション状態の購読を開始する。
// 最初に解決済みの状態（Resolving=false）を1回配信し、以降はctxが終了するまで
// ログイン・登録・ログアウトごとの状態を配信する。ctx終了後にチャネルは閉じられる。
// 読み出しが遅い購読者には最新の状態のみが届く。
func (s *Store) Subscribe(ctx context.Context, sess *model.Session) (<-chan model.SessionState, error) {
	// 解決中の変化を取りこぼさないよう、解決より先に購読する
	updates, unsubscribe, err := s.broker.Subscribe(ctx, sess.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	state, err := s.Resolve(ctx, sess)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan model.SessionState, 1)
	out <- state
	s.metrics.SubscriberAdded()

	go func() {
		defer close(out)
		defer unsubscribe()
		defer s.metrics.SubscriberRemoved()

		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				offerLatest(out, st)
			}
		}
	}()

	return out, nil
}

// Login はプロバイダで認証し、成功時はセッションIDをローテーションして
// プリンシパルを紐付け、状態を1回配信する。
// 失敗時はセッションを変更せず、何も配信しない。
func (s *Store) Login(ctx context.Context, sess *model.Session, in form.LoginInput) (*model.Identity, *model.Session, error) {
	if errs := form.ValidateLogin(in); errs != nil {
		return nil, nil, &form.ValidationError{Fields: errs}
	}

	ident, err := s.provider.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		s.metrics.RecordAuthAttempt("login", string(model.AuthErrorKindOf(err)))
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	next, err := s.bind(ctx, sess, ident)
	if err != nil {
		s.metrics.RecordAuthAttempt("login", "error")
		return nil, nil, err
	}

	s.metrics.RecordAuthAttempt("login", "success")
	slog.Info("user logged in", slog.String("user_id", ident.UID))
	return ident, next, nil
}

// Register はプロバイダでアカウントを作成し、Loginと同様にセッションへ紐付ける。
// メールアドレスが既に使われている場合はセッションを変更しない。
func (s *Store) Register(ctx context.Context, sess *model.Session, in form.RegisterInput) (*model.Identity, *model.Session, error) {
	if errs := form.ValidateRegister(in); errs != nil {
		return nil, nil, &form.ValidationError{Fields: errs}
	}

	ident, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		s.metrics.RecordAuthAttempt("register", string(model.AuthErrorKindOf(err)))
		return nil, nil, fmt.Errorf("registration failed: %w", err)
	}

	next, err := s.bind(ctx, sess, ident)
	if err != nil {
		s.metrics.RecordAuthAttempt("register", "error")
		return nil, nil, err
	}

	s.metrics.RecordAuthAttempt("register", "success")
	slog.Info("user registered", slog.String("user_id", ident.UID))
	return ident, next, nil
}

// Logout はプロバイダでサインアウトし、セッションを破棄して未ログイン状態を1回配信する。
// プロバイダのサインアウトに失敗した場合はエラーを返し、セッションは変更しない。
func (s *Store) Logout(ctx context.Context, sess *model.Session) error {
	if !sess.Anonymous() {
		if err := s.provider.SignOut(ctx, sess.UserID); err != nil {
			s.metrics.RecordAuthAttempt("logout", string(model.AuthErrorKindOf(err)))
			return fmt.Errorf("logout failed: %w", err)
		}
	}

	if sess.Persisted() {
		if err := s.sessions.DeleteByID(ctx, sess.ID); err != nil {
			s.metrics.RecordAuthAttempt("logout", "error")
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	s.publish(ctx, sess.ClientKey, model.SessionState{})
	s.metrics.RecordAuthAttempt("logout", "success")
	slog.Info("user logged out", slog.String("user_id", sess.UserID))
	return nil
}

// bind は同じClientKeyで新しいIDのセッションを作成してプリンシパルを紐付け、
// 保存済みの旧セッションを破棄して状態を配信する。匿名セッションはここで初めて保存される。
func (s *Store) bind(ctx context.Context, sess *model.Session, ident *model.Identity) (*model.Session, error) {
	next, err := s.createSession(ctx, sess.ClientKey, ident.UID)
	if err != nil {
		return nil, err
	}
	if sess.Persisted() {
		if err := s.sessions.DeleteByID(ctx, sess.ID); err != nil {
			// 旧セッションは期限切れで消えるため処理は継続する
			slog.Warn("failed to delete rotated session",
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, sess.ClientKey, model.SessionState{Identity: ident})
	return next, nil
}

func (s *Store) publish(ctx context.Context, clientKey string, state model.SessionState) {
	if err := s.broker.Publish(ctx, clientKey, state); err != nil {
		slog.Error("failed to publish session state",
			slog.String("error", err.Error()),
		)
	}
}

// createSession はセッションを作成し永続化する。
func (s *Store) createSession(ctx context.Context, clientKey, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		ClientKey: clientKey,
		UserID:    userID,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IsValidation はエラーが入力検証エラーかどうかを判定し、フィールドエラーを返す。
func IsValidation(err error) (form.Errors, bool) {
	var ve *form.ValidationError
	if errors.As(err, &ve) {
		return ve.Fields, true
	}
	return nil, false
}
