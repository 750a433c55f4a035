package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/qredentials/internal/guard"
	"github.com/hitoshi/qredentials/internal/metrics"
	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/qrcode"
	"github.com/hitoshi/qredentials/internal/view"
)

// SessionStore はルーターが必要とするセッションストアのインターフェース。
// identity.Storeが実装する。
type SessionStore interface {
	middleware.SessionResolver
	Authenticator
	SessionSubscriber
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	Gatherer          prometheus.Gatherer
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Cookies           middleware.SessionConfig

	// セッション
	Store             SessionStore
	HeartbeatInterval time.Duration
	// StreamsDone が閉じられるとSSEストリームを終了する（http.Server.RegisterOnShutdownから閉じる）
	StreamsDone <-chan struct{}

	// ダッシュボード
	Composer DashboardComposer
	Avatars  AvatarFetcher

	// 描画
	Renderer PageRenderer

	// ヘルスチェック対象（nilは除外）
	HealthChecks map[string]Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → RealIP → Logging → Metrics → SecurityHeaders
//	  → Session → CSRF → RateLimit(General) → [Guard | RateLimit(Auth) | CORS]
//
// 静的ファイル・/health・/metricsはセッションを発行しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(qrcode.Host))

	authHandler := NewAuthHandler(deps.Store, deps.Renderer, deps.Cookies)
	dashboardHandler := NewDashboardHandler(deps.Composer, deps.Avatars, deps.Renderer, deps.Cookies.CookieSecure)
	sessionHandler := NewSessionHandler(deps.Store, deps.HeartbeatInterval, deps.StreamsDone)

	loading := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := basePage(w, r, "Loading", deps.Cookies.CookieSecure)
		deps.Renderer.Render(w, http.StatusOK, view.PageLoading, page)
	})
	pageGuard := guard.Middleware(func(r *http.Request) (model.SessionState, bool) {
		return middleware.StateFromContext(r.Context())
	}, loading)

	// --- セッション不要のルート ---
	r.Handle("/static/*", view.StaticHandler())
	r.Get("/health", NewHealthHandler(deps.HealthChecks))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- セッション付きのルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Store, deps.Cookies))
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure:   deps.Cookies.CookieSecure,
			CookieDomain:   deps.Cookies.CookieDomain,
			TrustedOrigins: trustedOrigins(deps.CORSAllowedOrigin),
		}))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ページ（ガード適用）
		r.Group(func(r chi.Router) {
			r.Use(pageGuard)
			r.Get("/", Root)
			r.Get("/login", authHandler.LoginPage)
			r.Get("/register", authHandler.RegisterPage)
			r.Get("/dashboard", dashboardHandler.Show)
		})

		// フォーム送信（認証専用レート制限を追加）
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)

		r.Get("/dashboard/avatar", dashboardHandler.Avatar)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
			r.Get("/session", sessionHandler.Current)
			r.Get("/session/events", sessionHandler.Events)
		})
	})

	return r
}

func trustedOrigins(origin string) []string {
	if origin == "" {
		return nil
	}
	return []string{origin}
}
