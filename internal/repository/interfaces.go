// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/qredentials/internal/model"
)

// ErrDuplicateEmail はメールアドレスが既に登録済みであることを示す。
var ErrDuplicateEmail = errors.New("email already registered")

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// LocalUserRepository はローカルプロバイダのアカウント永続化インターフェース。
type LocalUserRepository interface {
	// FindByEmail はメールアドレス（大文字小文字を区別しない）で検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.LocalUser, error)
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.LocalUser, error)
	// Create はアカウントを作成する。メールアドレス重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.LocalUser) error
}
