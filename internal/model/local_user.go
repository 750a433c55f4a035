package model

import "time"

// LocalUser は開発用ローカルプロバイダが保持するアカウント。
type LocalUser struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
}

// Identity はLocalUserを認証済みプリンシパルとして返す。
func (u *LocalUser) Identity() *Identity {
	return &Identity{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}
