// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const redacted = "[REDACTED]"

// level はグローバルロガーの出力レベル。設定読み込み後にSetLevelで変更する。
var level = new(slog.LevelVar)

// secretKeys はログに平文で出してはならない属性名。
var secretKeys = map[string]struct{}{
	"password":      {},
	"id_token":      {},
	"refresh_token": {},
	"api_key":       {},
	"session_id":    {},
	"csrf_token":    {},
}

// redactSecrets は認証情報に当たる属性の値を伏せる。キーの大文字小文字は区別しない。
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	})
	return slog.New(handler).With(slog.String("service", "qredentials"))
}

// SetupDefault はグローバルロガーを設定する。wがnilならos.Stdout。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetLevel は出力レベルを変更する。Setup済みのロガーにも反映される。
func SetLevel(l slog.Level) {
	level.Set(l)
}
