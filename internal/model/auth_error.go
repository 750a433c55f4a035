package model

import (
	"errors"
	"fmt"
)

// AuthErrorKind は認証プロバイダのエラーを分類した種別。
type AuthErrorKind string

const (
	AuthErrInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthErrEmailInUse         AuthErrorKind = "email_in_use"
	AuthErrWeakPassword       AuthErrorKind = "weak_password"
	AuthErrInvalidEmail       AuthErrorKind = "invalid_email"
	AuthErrUserDisabled       AuthErrorKind = "user_disabled"
	AuthErrTooManyRequests    AuthErrorKind = "too_many_requests"
	// AuthErrUnavailable はプロバイダに到達できなかったことを示す。
	AuthErrUnavailable AuthErrorKind = "unavailable"
	AuthErrUnknown     AuthErrorKind = "unknown"
)

// AuthError はプロバイダ境界で分類済みの認証エラー。
// UI向けの文言はKindからのみ決定する。
type AuthError struct {
	Kind AuthErrorKind
	Op   string // signin, signup, signout, lookup
	Err  error
}

// NewAuthError はAuthErrorを生成する。
func NewAuthError(op string, kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("auth %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthErrorKindOf はエラーチェーンからAuthErrorの種別を取り出す。
// AuthErrorを含まない場合はAuthErrUnknownを返す。
func AuthErrorKindOf(err error) AuthErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return AuthErrUnknown
}

// IsAuthErrorKind はエラーが指定種別のAuthErrorかどうかを判定する。
func IsAuthErrorKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

// ログイン・登録フローで表示する固定文言。
const (
	MsgLoginInvalidCredentials = "Invalid email or password."
	MsgLoginFailed             = "Login failed. Please check your credentials."
	MsgRegisterEmailInUse      = "This email is already registered. Please login or use a different email."
	MsgRegisterFailed          = "Registration failed. Please try again."
)

// LoginFailureMessage はログイン失敗時にユーザーへ表示する文言を返す。
func LoginFailureMessage(err error) string {
	if AuthErrorKindOf(err) == AuthErrInvalidCredentials {
		return MsgLoginInvalidCredentials
	}
	return MsgLoginFailed
}

// RegisterFailureMessage は登録失敗時にユーザーへ表示する文言を返す。
func RegisterFailureMessage(err error) string {
	if AuthErrorKindOf(err) == AuthErrEmailInUse {
		return MsgRegisterEmailInUse
	}
	return MsgRegisterFailed
}
