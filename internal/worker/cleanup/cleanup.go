// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// Redisのセッションは TTL で失効するため、対象はPostgreSQLのsessionsテーブルのみ。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は削除ジョブの既定の実行間隔。
const DefaultInterval = time.Hour

// ExpiredSessionDeleter は期限切れセッションを削除するインターフェース。
// repository.SessionRepositoryが実装する。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions ExpiredSessionDeleter
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。loggerがnilの場合はデフォルトロガーを使う。
func NewCleanupJob(sessions ExpiredSessionDeleter, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降はintervalごとにRunを実行する。
// ctxがキャンセルされるまで戻らない。個々の実行の失敗はログに残して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("session cleanup scheduler started", slog.Duration("interval", interval))

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup scheduler stopped")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
