package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/qredentials/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// PostgresLocalUserRepo はPostgreSQLを使用したローカルアカウントリポジトリ。
type PostgresLocalUserRepo struct {
	db *sql.DB
}

// NewPostgresLocalUserRepo はPostgresLocalUserRepoを生成する。
func NewPostgresLocalUserRepo(db *sql.DB) *PostgresLocalUserRepo {
	return &PostgresLocalUserRepo{db: db}
}

const localUserColumns = `id, email, display_name, password_hash, disabled, created_at`

func scanLocalUser(row *sql.Row) (*model.LocalUser, error) {
	u := &model.LocalUser{}
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Disabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。
func (r *PostgresLocalUserRepo) FindByEmail(ctx context.Context, email string) (*model.LocalUser, error) {
	u, err := scanLocalUser(r.db.QueryRowContext(ctx,
		`SELECT `+localUserColumns+` FROM local_users WHERE LOWER(email) = LOWER($1)`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find local user by email: %w", err)
	}
	return u, nil
}

// FindByID は指定IDのアカウントを取得する。
func (r *PostgresLocalUserRepo) FindByID(ctx context.Context, id string) (*model.LocalUser, error) {
	u, err := scanLocalUser(r.db.QueryRowContext(ctx,
		`SELECT `+localUserColumns+` FROM local_users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find local user by ID: %w", err)
	}
	return u, nil
}

// Create はアカウントを作成する。
func (r *PostgresLocalUserRepo) Create(ctx context.Context, user *model.LocalUser) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_users (id, email, display_name, password_hash, disabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Disabled, user.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert local user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LocalUserRepository = (*PostgresLocalUserRepo)(nil)
