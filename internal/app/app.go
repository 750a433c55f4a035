package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/qredentials/internal/config"
	"github.com/hitoshi/qredentials/internal/dashboard"
	"github.com/hitoshi/qredentials/internal/database"
	"github.com/hitoshi/qredentials/internal/fact"
	"github.com/hitoshi/qredentials/internal/handler"
	"github.com/hitoshi/qredentials/internal/identity"
	"github.com/hitoshi/qredentials/internal/identity/firebase"
	"github.com/hitoshi/qredentials/internal/identity/local"
	"github.com/hitoshi/qredentials/internal/logger"
	"github.com/hitoshi/qredentials/internal/metrics"
	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/repository"
	"github.com/hitoshi/qredentials/internal/security"
	"github.com/hitoshi/qredentials/internal/view"
	"github.com/hitoshi/qredentials/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINT/SIGTERMでコンテキストがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// stores はセッションの保存先と配信ブローカー。
type stores struct {
	db       *sql.DB
	redis    *redis.Client
	sessions repository.SessionRepository
	broker   identity.Broker
}

func (s *stores) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// healthChecks は/healthで確認する依存先を返す。未使用の依存先は含めない。
func (s *stores) healthChecks() map[string]handler.Pinger {
	checks := make(map[string]handler.Pinger, 2)
	if s.db != nil {
		checks["database"] = s.db
	}
	if s.redis != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		})
	}
	return checks
}

// openStores は設定に応じてPostgreSQL・Redisへ接続し、セッションリポジトリとブローカーを構築する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	if cfg.NeedsDatabase() {
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPool)
		if err != nil {
			return nil, err
		}
		s.db = db
		slog.Info("database connection established")
	}

	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := database.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = client
		s.sessions = repository.NewRedisSessionRepo(client)
		s.broker = identity.NewRedisBroker(client)
		slog.Info("redis connection established")
	default:
		s.sessions = repository.NewPostgresSessionRepo(s.db)
		s.broker = identity.NewMemoryBroker()
	}

	return s, nil
}

// newProvider は設定に応じた認証プロバイダを生成する。
func newProvider(ctx context.Context, cfg *config.Config, db *sql.DB) (identity.Provider, error) {
	switch cfg.AuthProvider {
	case config.AuthProviderLocal:
		return local.NewProvider(repository.NewPostgresLocalUserRepo(db)), nil
	default:
		p, err := firebase.New(ctx, firebase.Config{
			APIKey:          cfg.FirebaseAPIKey,
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase: %w", err)
		}
		return p, nil
	}
}

// runServe はWebサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーとセッション削除ジョブをerrgroupで実行する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting application",
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("auth_provider", cfg.AuthProvider),
		slog.String("session_store", cfg.SessionStore),
	)

	// 1. ストレージ
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. セッションストア
	provider, err := newProvider(ctx, cfg, st.db)
	if err != nil {
		return err
	}
	store := identity.NewStore(provider, st.sessions, st.broker, collector,
		identity.Config{SessionMaxAge: cfg.SessionMaxAge},
	)

	// 4. ファクト生成とダッシュボード
	generator, err := fact.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return err
	}
	composer := dashboard.NewComposer(
		fact.NewFlow(generator, collector, cfg.FactTimeout),
		security.NewTextSanitizer(),
	)
	avatars := security.NewImageFetcher(security.NewSSRFGuard(), cfg.AvatarTimeout, cfg.AvatarMaxSize)

	renderer, err := view.NewRenderer()
	if err != nil {
		return err
	}

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	streamsDone := make(chan struct{})

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		Gatherer:          registry,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Cookies: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		Store:             store,
		HeartbeatInterval: cfg.SSEHeartbeatInterval,
		StreamsDone:       streamsDone,
		Composer:          composer,
		Avatars:           avatars,
		Renderer:          renderer,
		HealthChecks:      st.healthChecks(),
	})

	// 6. HTTPサーバー
	// SSEの接続を切らないよう、WriteTimeoutは設定しない。
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// リクエストのコンテキストはシグナルで切らない。処理中のリクエストはShutdownが待ち、
	// 終わらないSSEだけをここで閉じる。
	server.RegisterOnShutdown(func() { close(streamsDone) })

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down web server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	// Redisのセッションは TTL で失効するため、削除ジョブはPostgreSQLのときのみ動かす。
	if cfg.SessionStore == config.SessionStorePostgres {
		job := cleanup.NewCleanupJob(st.sessions, slog.Default())
		g.Go(func() error {
			job.Start(gctx, cfg.SessionCleanupInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("web server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.Migrate(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
