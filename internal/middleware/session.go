// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/qredentials/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey = contextKey("session")
	stateContextKey   = contextKey("session_state")
)

// SessionResolver はセッションの確保と解決に必要なインターフェース。
// identity.Storeの部分集合として定義する。
type SessionResolver interface {
	EnsureSession(ctx context.Context, id string) (*model.Session, bool, error)
	Resolve(ctx context.Context, sess *model.Session) (model.SessionState, error)
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       time.Duration
}

// NewSessionMiddleware はCookieからセッションを読み取り、解決済みの状態をコンテキストに注入する。
// Cookieが無い・不明・期限切れの場合は保存しない匿名セッションを使い、Cookieは発行しない。
// 不明・期限切れのCookieは削除する。未ログインでも401は返さず、判定はガードとハンドラに任せる。
func NewSessionMiddleware(resolver SessionResolver, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				id = cookie.Value
			}

			sess, stale, err := resolver.EnsureSession(r.Context(), id)
			if err != nil {
				slog.Error("failed to ensure session",
					slog.String("error", err.Error()),
				)
				writeUnavailable(w, r)
				return
			}
			if stale {
				ClearSessionCookie(w, config)
			}

			state, err := resolver.Resolve(r.Context(), sess)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				writeUnavailable(w, r)
				return
			}

			if state.Identity != nil {
				annotateUserID(r.Context(), state.Identity.UID)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess, state)))
		})
	}
}

// SetSessionCookie はセッションIDのCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, sess *model.Session, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションIDのCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeUnavailable はセッション解決の失敗を503で返す。
// APIはJSON、ページはプレーンテキストで返す。
func writeUnavailable(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewProviderUnavailableError())
		return
	}
	http.Error(w, "Service temporarily unavailable. Please try again.", http.StatusServiceUnavailable)
}

// ContextWithSession はセッションと解決済みの状態をコンテキストに注入する。
// テストやミドルウェア以外のコンテキスト生成でも使用する。
func ContextWithSession(ctx context.Context, sess *model.Session, state model.SessionState) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, sess)
	return context.WithValue(ctx, stateContextKey, state)
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*model.Session)
	return sess, ok && sess != nil
}

// StateFromContext はリクエストコンテキストから解決済みの状態を取得する。
// セッションミドルウェアを通過していない場合は解決中の状態とfalseを返す。
func StateFromContext(ctx context.Context) (model.SessionState, bool) {
	state, ok := ctx.Value(stateContextKey).(model.SessionState)
	if !ok {
		return model.InitialSessionState(), false
	}
	return state, true
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	state, _ := StateFromContext(ctx)
	if state.Identity == nil || state.Identity.UID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return state.Identity.UID, nil
}
