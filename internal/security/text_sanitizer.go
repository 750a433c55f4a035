// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は生成モデルが返したテキストからマークアップを取り除き、
// ダッシュボードにプレーンテキストとして表示できる形にする。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/atom"
)

// TextSanitizer はテキストからHTMLを除去する機能のインターフェース。
type TextSanitizer interface {
	// PlainText はHTML要素のタグを除去したテキストを返す。
	// script, styleの中身も除去される。要素名でない山括弧（<user@example.com>など）は文字として残す。
	// エンティティは元の文字に戻す。
	PlainText(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

var _ TextSanitizer = (*textSanitizer)(nil)

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はタグを除去したテキストを返す。
// 出力はhtml/templateで改めてエスケープされる前提のため、エンティティはデコードしておく。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(escapeNonElements(raw))))
}

var tagLike = regexp.MustCompile(`</?[A-Za-z][^\s/>]*`)

// escapeNonElements はHTMLの要素名として解釈できない開始山括弧をエスケープする。
func escapeNonElements(raw string) string {
	return tagLike.ReplaceAllStringFunc(raw, func(m string) string {
		name := strings.ToLower(strings.TrimLeft(m, "</"))
		if atom.Lookup([]byte(name)) != 0 {
			return m
		}
		return "&lt;" + m[1:]
	})
}
