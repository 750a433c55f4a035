// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は認証プロバイダが報告する認証済みプリンシパルを表す。
// 値はプロバイダからのみ取得し、本システムが書き換えることはない。
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	// CreatedAt はアカウント作成日時。プロバイダが報告しない場合はゼロ値。
	CreatedAt time.Time `json:"createdAt"`
}

// Session はブラウザ単位のサーバー側セッションを表す。
// UserIDが空のセッションは匿名（未ログイン）を意味する。
type Session struct {
	ID string
	// ClientKey はセッションIDのローテーションを跨いでブラウザを識別するサーバー専用キー。
	// 状態変化の配信トピックとして使用する。
	ClientKey string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Anonymous はセッションにプリンシパルが紐付いていないかどうかを返す。
func (s *Session) Anonymous() bool {
	return s.UserID == ""
}

// Persisted は保存済みのセッションかどうかを返す。
// 匿名セッションはログイン・登録で紐付けるまで保存せず、IDもCookieも持たない。
func (s *Session) Persisted() bool {
	return s.ID != ""
}

// SessionState はセッションストアが購読者に配信する状態。
// 最初の配信前はResolving=true, Identity=nilとして扱う。
type SessionState struct {
	Identity  *Identity `json:"identity"`
	Resolving bool      `json:"resolving"`
}

// Authenticated は解決済みかつIdentityが存在するかどうかを返す。
func (s SessionState) Authenticated() bool {
	return !s.Resolving && s.Identity != nil
}

// InitialSessionState は最初の配信前の状態を返す。
func InitialSessionState() SessionState {
	return SessionState{Resolving: true}
}
