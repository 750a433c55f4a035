// Package local は開発用の認証プロバイダを提供する。
// アカウントはPostgreSQLに保存し、パスワードはbcryptでハッシュ化する。
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/qredentials/internal/identity"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/repository"
)

// MinPasswordLength はFirebaseと同じ最小パスワード長。
const MinPasswordLength = 6

// Provider はローカルアカウントによる認証を提供する。
type Provider struct {
	users repository.LocalUserRepository
	cost  int
	now   func() time.Time
}

// NewProvider はProviderを生成する。
func NewProvider(users repository.LocalUserRepository) *Provider {
	return &Provider{users: users, cost: bcrypt.DefaultCost, now: time.Now}
}

// SignIn はメールアドレスとパスワードで認証する。
// アカウントの有無は区別せず、どちらもinvalid_credentialsとして返す。
func (p *Provider) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	user, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewAuthError("signin", model.AuthErrUnavailable, err)
	}
	if user == nil {
		return nil, model.NewAuthError("signin", model.AuthErrInvalidCredentials, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewAuthError("signin", model.AuthErrInvalidCredentials, nil)
	}
	if user.Disabled {
		return nil, model.NewAuthError("signin", model.AuthErrUserDisabled, nil)
	}
	return user.Identity(), nil
}

// SignUp はアカウントを作成する。
func (p *Provider) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	if len(password) < MinPasswordLength {
		return nil, model.NewAuthError("signup", model.AuthErrWeakPassword, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, model.NewAuthError("signup", model.AuthErrUnknown, fmt.Errorf("failed to hash password: %w", err))
	}

	user := &model.LocalUser{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewAuthError("signup", model.AuthErrEmailInUse, err)
		}
		return nil, model.NewAuthError("signup", model.AuthErrUnavailable, err)
	}
	return user.Identity(), nil
}

// SignOut はサーバー側に失効させる資格情報を持たないため何もしない。
func (p *Provider) SignOut(_ context.Context, _ string) error {
	return nil
}

// Lookup はアカウントを照会する。削除済み・無効化済みの場合はnilを返す。
func (p *Provider) Lookup(ctx context.Context, uid string) (*model.Identity, error) {
	user, err := p.users.FindByID(ctx, uid)
	if err != nil {
		return nil, model.NewAuthError("lookup", model.AuthErrUnavailable, err)
	}
	if user == nil || user.Disabled {
		return nil, nil
	}
	return user.Identity(), nil
}

// compile-time interface check
var _ identity.Provider = (*Provider)(nil)
