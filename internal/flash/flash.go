// Package flash はリダイレクトを跨いで1回だけ表示するトースト通知を提供する。
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// CookieName はトースト通知を保持するCookieの名前。
const CookieName = "qr_flash"

// Kind はトーストの表示種別。
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice はトースト通知。
type Notice struct {
	Kind    Kind   `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// Success は成功トーストを生成する。
func Success(title, message string) Notice {
	return Notice{Kind: KindSuccess, Title: title, Message: message}
}

// Error はエラートーストを生成する。
func Error(title, message string) Notice {
	return Notice{Kind: KindError, Title: title, Message: message}
}

// Write は次のページ描画用にトーストをCookieへ保存する。
func Write(w http.ResponseWriter, notice Notice, secure bool) {
	normalized, ok := normalize(notice)
	if !ok {
		return
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadAndClear はトーストを読み出し、Cookieを削除する。
func ReadAndClear(w http.ResponseWriter, r *http.Request, secure bool) (Notice, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Notice{}, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return decode(cookie.Value)
}

func decode(raw string) (Notice, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Notice{}, false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Notice{}, false
	}
	var notice Notice
	if err := json.Unmarshal(decoded, &notice); err != nil {
		return Notice{}, false
	}
	return normalize(notice)
}

func normalize(notice Notice) (Notice, bool) {
	notice.Title = strings.TrimSpace(notice.Title)
	notice.Message = strings.TrimSpace(notice.Message)
	if notice.Title == "" {
		return Notice{}, false
	}
	switch notice.Kind {
	case KindSuccess, KindError:
		return notice, true
	default:
		return Notice{}, false
	}
}
