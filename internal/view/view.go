// Package view はページのHTMLテンプレートと静的ファイルを提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/qredentials/internal/dashboard"
	"github.com/hitoshi/qredentials/internal/flash"
	"github.com/hitoshi/qredentials/internal/form"
	"github.com/hitoshi/qredentials/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*.css static/*.js
var staticFS embed.FS

// ページ名。
const (
	PageLogin     = "login"
	PageRegister  = "register"
	PageDashboard = "dashboard"
	PageLoading   = "loading"
	PageError     = "error"
)

var pageNames = []string{PageLogin, PageRegister, PageDashboard, PageLoading, PageError}

// FormData はフォームの再表示用データ。パスワードは保持しない。
type FormData struct {
	Email  string
	Errors form.Errors
}

// Page はテンプレートに渡すデータ。
type Page struct {
	Title     string
	CSRFToken string
	// Identity はナビゲーションの表示切り替えに使う。
	Identity      *model.Identity
	Flash         *flash.Notice
	Form          FormData
	Dashboard     *dashboard.View
	Message       string
	StreamSession bool
}

// Renderer はページを描画する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
// ページごとにレイアウトと組み合わせて解析するため、contentブロックは衝突しない。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render はページを描画してステータスコードとともに書き込む。
// 描画に失敗した場合は何も書き込まずに500を返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data Page) {
	tmpl, ok := r.pages[name]
	if !ok {
		slog.Error("unknown page template", slog.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// StaticHandler は/static/配下の静的ファイルを配信する。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static assets are not embedded: %v", err))
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
