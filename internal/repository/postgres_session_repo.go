package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/qredentials/internal/model"
)

const (
	sqlInsertSession = `INSERT INTO sessions (id, client_key, user_id, expires_at, created_at)
VALUES ($1, $2::uuid, $3, $4, $5)`
	sqlSelectLiveSession = `SELECT id, client_key::text, user_id, expires_at, created_at
FROM sessions
WHERE id = $1 AND expires_at > now()`
	sqlDeleteSession = `DELETE FROM sessions WHERE id = $1`
	sqlPurgeSessions = `DELETE FROM sessions WHERE expires_at <= now()`
)

// PostgresSessionRepo はsessionsテーブルにセッションを保存する。
// 期限切れ行は読み取り時に無視し、物理削除はクリーンアップジョブが行う。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if _, err := r.db.ExecContext(ctx, sqlInsertSession,
		s.ID, s.ClientKey, s.UserID, s.ExpiresAt, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByID は有効なセッションを返す。存在しないか期限切れならnil, nil。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	row := r.db.QueryRowContext(ctx, sqlSelectLiveSession, id)
	switch err := row.Scan(&s.ID, &s.ClientKey, &s.UserID, &s.ExpiresAt, &s.CreatedAt); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &s, nil
}

func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, sqlDeleteSession, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを物理削除し、件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, sqlPurgeSessions)
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return res.RowsAffected()
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
