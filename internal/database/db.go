package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 3 * time.Second

// PoolConfig はPostgreSQLコネクションプールの設定。
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxIdleTime time.Duration
}

// DefaultPool はセッション参照とローカルアカウント参照に十分なプール設定。
var DefaultPool = PoolConfig{MaxOpen: 10, MaxIdle: 5, MaxIdleTime: 5 * time.Minute}

// Connect はPostgreSQLへ接続し、疎通を確認してから返す。
func Connect(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	if err := ping(ctx, db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// OpenRedis はRedisクライアントを生成し、疎通を確認してから返す。
func OpenRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: connectTimeout,
	})
	if err := ping(ctx, func(ctx context.Context) error { return client.Ping(ctx).Err() }); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return fn(ctx)
}
