// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"net/http"

	"github.com/hitoshi/qredentials/internal/flash"
	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/view"
)

// PageRenderer はページ描画のインターフェース。view.Rendererが実装する。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, name string, data view.Page)
}

// basePage はCSRFトークン・Identity・フラッシュを埋めたページデータを組み立てる。
// フラッシュCookieは読み取り時に消去する。
func basePage(w http.ResponseWriter, r *http.Request, title string, secure bool) view.Page {
	page := view.Page{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	if state, ok := middleware.StateFromContext(r.Context()); ok {
		page.Identity = state.Identity
	}
	if notice, ok := flash.ReadAndClear(w, r, secure); ok {
		page.Flash = &notice
	}
	return page
}
