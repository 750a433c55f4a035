package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const corsPreflightMaxAge = 10 * time.Minute

// NewCORSMiddleware は/api配下の読み取り専用エンドポイント向けCORSミドルウェアを返す。
// Originが一致したときだけ許可ヘッダーを付ける。allowedOriginが空なら同一オリジンのみ。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowedOrigin = strings.TrimSuffix(allowedOrigin, "/")
	return func(next http.Handler) http.Handler {
		if allowedOrigin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if !strings.EqualFold(origin, allowedOrigin) {
				if r.Method == http.MethodOptions && origin != "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				// EventSourceの再接続はLast-Event-IDを付けてくる
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Last-Event-ID, Cache-Control")
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(corsPreflightMaxAge.Seconds())))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
