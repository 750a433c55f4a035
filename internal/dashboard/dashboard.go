// Package dashboard は認証済みユーザーのダッシュボード表示内容を組み立てる。
// 1回の描画につきファクト生成を1回だけ要求する。
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/qredentials/internal/fact"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/qrcode"
	"github.com/hitoshi/qredentials/internal/security"
)

// 表示用の固定文言。
const (
	FactFallback       = "Could not generate a unique fact at this time."
	FactUnavailable    = "No fact available at the moment."
	DefaultDisplayName = "Valued User"
	UnknownJoinDate    = "N/A"
	UnknownInitial     = "?"

	// AvatarPath はプロフィール画像のプロキシエンドポイント。
	AvatarPath = "/dashboard/avatar"

	joinDateLayout = "Jan 2, 2006"
	shortIDLength  = 10
)

// ErrUnauthenticated はプリンシパルなしで組み立てようとした場合のエラー。
var ErrUnauthenticated = errors.New("dashboard requires an authenticated identity")

// FactRequester はファクト生成フロー。
type FactRequester interface {
	Request(ctx context.Context, in fact.Input) fact.Result
}

// View はダッシュボードの表示内容。
type View struct {
	DisplayName string
	Email       string
	Initial     string
	JoinDate    string
	UserID      string
	ShortUserID string
	QRURL       string
	AvatarPath  string
	Fact        string
	FactFailed  bool // 生成に失敗しフォールバック文を使った。表示は変えない
}

// Composer はダッシュボードを組み立てる。
type Composer struct {
	facts     FactRequester
	sanitizer security.TextSanitizer
}

// NewComposer はComposerを生成する。
func NewComposer(facts FactRequester, sanitizer security.TextSanitizer) *Composer {
	return &Composer{facts: facts, sanitizer: sanitizer}
}

// Compose はプリンシパルの現時点の情報からViewを組み立てる。
// ファクト生成の失敗は固定文言に置き換え、エラーとしては返さない。
func (c *Composer) Compose(ctx context.Context, id *model.Identity) (*View, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}

	v := &View{
		DisplayName: displayName(id),
		Email:       id.Email,
		Initial:     initial(id.Email),
		JoinDate:    UnknownJoinDate,
		UserID:      id.UID,
		ShortUserID: shortID(id.UID),
		QRURL:       qrcode.URL(id.UID),
	}
	if !id.CreatedAt.IsZero() {
		v.JoinDate = id.CreatedAt.Format(joinDateLayout)
	}
	if id.PhotoURL != "" {
		v.AvatarPath = AvatarPath
	}

	in := fact.NewInput(id)
	if !in.Complete() {
		v.Fact = FactUnavailable
		return v, nil
	}

	result := c.facts.Request(ctx, in)
	if !result.OK() {
		slog.Error("failed to generate fact for dashboard",
			slog.String("user_id", id.UID),
			slog.String("error", result.Err.Error()),
		)
		v.Fact = FactFallback
		v.FactFailed = true
		return v, nil
	}

	v.Fact = c.sanitizer.PlainText(result.Fact)
	return v, nil
}

func displayName(id *model.Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	return DefaultDisplayName
}

func initial(email string) string {
	r, _ := utf8.DecodeRuneInString(email)
	if r == utf8.RuneError {
		return UnknownInitial
	}
	return string(unicode.ToUpper(r))
}

// shortID は先頭10文字に"..."を付ける。短いIDもそのまま"..."を付ける。
func shortID(uid string) string {
	r := []rune(uid)
	if len(r) > shortIDLength {
		r = r[:shortIDLength]
	}
	return string(r) + "..."
}
