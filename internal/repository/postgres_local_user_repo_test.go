package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/qredentials/internal/model"
)

func TestPostgresLocalUserRepo(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresLocalUserRepo(db)
	ctx := context.Background()

	user := &model.LocalUser{
		ID:           "0f8fad5b-d9cb-469f-a165-70867728950e",
		Email:        "a@b.com",
		DisplayName:  "Ada",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("メールアドレスは大文字小文字を区別せず検索できる", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "A@B.COM")
		if err != nil {
			t.Fatalf("FindByEmail() error = %v", err)
		}
		if got == nil || got.ID != user.ID {
			t.Fatalf("FindByEmail() = %+v, want id %q", got, user.ID)
		}
	})

	t.Run("IDで検索できる", func(t *testing.T) {
		got, err := repo.FindByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil || got.Email != "a@b.com" {
			t.Errorf("FindByID() = %+v", got)
		}
	})

	t.Run("重複メールアドレスはErrDuplicateEmail", func(t *testing.T) {
		dup := *user
		dup.ID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
		dup.Email = "A@b.com"
		err := repo.Create(ctx, &dup)
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Errorf("Create(duplicate) error = %v, want ErrDuplicateEmail", err)
		}
	})

	t.Run("存在しないアカウントはnil", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "nobody@example.com")
		if err != nil {
			t.Fatalf("FindByEmail() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindByEmail() = %+v, want nil", got)
		}
	})
}
