package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/qredentials/internal/model"
)

const redisSessionPrefix = "session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 有効期限はキーのTTLとして管理する。
type RedisSessionRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, prefix: redisSessionPrefix}
}

type redisSession struct {
	ID        string    `json:"id"`
	ClientKey string    `json:"client_key"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *RedisSessionRepo) key(id string) string {
	return r.prefix + id
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: expires_at must be in the future")
	}

	data, err := json.Marshal(redisSession{
		ID:        session.ID,
		ClientKey: session.ClientKey,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(val, &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	// TTLの丸めで一瞬残る場合がある
	if !rs.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	return &model.Session{
		ID:        rs.ID,
		ClientKey: rs.ClientKey,
		UserID:    rs.UserID,
		ExpiresAt: rs.ExpiresAt,
		CreatedAt: rs.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はTTLで自動削除されるため何もしない。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
