// Package qrcode はユーザーIDを埋め込んだQR画像サービスのURLを組み立てる。
package qrcode

import (
	"net/url"
	"strings"
)

// Endpoint はQR画像生成サービスのエンドポイント。
const Endpoint = "https://api.qrserver.com/v1/create-qr-code/"

// Host はCSPのimg-srcに許可するホスト。
const Host = "https://api.qrserver.com"

// URL はユーザーIDを埋め込んだQR画像のURLを返す。
// 埋め込むのはユーザーIDのみで、パラメータの順序は固定。
func URL(userID string) string {
	return Endpoint + "?size=250x250&data=" + EscapeComponent(userID) +
		"&format=png&qzone=1&color=3F51B5&bgcolor=E8EAF6"
}

// componentUnescaper はurl.QueryEscapeがエスケープするが
// encodeURIComponentではそのまま残す文字を元に戻す。
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapeComponent はJavaScriptのencodeURIComponentと同じ規則でエスケープする。
func EscapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
