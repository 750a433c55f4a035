package fact

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/hitoshi/qredentials/internal/model"
)

// isoLayout はJavaScriptのtoISOStringと同じ形式（UTC、ミリ秒3桁）。
const isoLayout = "2006-01-02T15:04:05.000Z"

const promptText = `You are an AI assistant tasked with generating unique and interesting facts based on user data.

Here is the user data:
Email: {{.Email}}
User ID: {{.UserID}}
Account Creation Date: {{.AccountCreationDate}}

Generate a single, surprising and personalized fact that combines these pieces of information in a creative way. The fact should be no more than two sentences long.
The fact should be suitable for display on a user dashboard to enhance their experience.
Remember to make the fact interesting and unique.
`

var promptTemplate = template.Must(template.New("fact").Parse(promptText))

// Input はファクト生成の入力。
type Input struct {
	Email               string
	UserID              string
	AccountCreationDate string
}

// NewInput はプリンシパルからInputを組み立てる。
// 作成日時が未設定の場合、AccountCreationDateは空文字になる。
func NewInput(id *model.Identity) Input {
	in := Input{
		Email:  id.Email,
		UserID: id.UID,
	}
	if !id.CreatedAt.IsZero() {
		in.AccountCreationDate = FormatCreationDate(id.CreatedAt)
	}
	return in
}

// Complete は3つのフィールドがすべて揃っているかを返す。
func (in Input) Complete() bool {
	return in.Email != "" && in.UserID != "" && in.AccountCreationDate != ""
}

// FormatCreationDate は作成日時をUTCのISO 8601形式に変換する。
func FormatCreationDate(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// RenderPrompt は入力を埋め込んだプロンプトを返す。
func RenderPrompt(in Input) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
