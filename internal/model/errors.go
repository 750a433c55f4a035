// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeStreamUnsupported   = "STREAM_UNSUPPORTED"
	ErrCodeAvatarUnavailable   = "AVATAR_UNAVAILABLE"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は未ログイン状態でのアクセスエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "You are not logged in.",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewProviderUnavailableError は認証プロバイダに到達できない場合のエラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "The authentication service is temporarily unavailable.",
		Category: "system",
		Action:   "Check your connection and try again in a moment.",
	}
}

// NewStreamUnsupportedError はストリーミング非対応の接続に対するエラーを生成する。
func NewStreamUnsupportedError() *APIError {
	return &APIError{
		Code:     ErrCodeStreamUnsupported,
		Message:  "Streaming is not supported on this connection.",
		Category: "system",
		Action:   "Reload the page.",
	}
}

// NewAvatarUnavailableError はプロフィール画像を取得できない場合のエラーを生成する。
func NewAvatarUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarUnavailable,
		Message:  fmt.Sprintf("Profile picture could not be loaded: %s", reason),
		Category: "system",
		Action:   "The initial is shown instead.",
	}
}

// NewRateLimitedError はリクエスト過多のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait for the time in Retry-After and retry.",
	}
}

// NewInternalError は詳細を伏せた内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
