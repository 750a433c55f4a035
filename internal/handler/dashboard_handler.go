package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/qredentials/internal/dashboard"
	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/security"
	"github.com/hitoshi/qredentials/internal/view"
)

// DashboardComposer はダッシュボードの表示内容を組み立てるインターフェース。
type DashboardComposer interface {
	Compose(ctx context.Context, id *model.Identity) (*dashboard.View, error)
}

// AvatarFetcher はプロフィール画像を取得するインターフェース。
type AvatarFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.Image, error)
}

// DashboardHandler はダッシュボード関連のHTTPハンドラー。
type DashboardHandler struct {
	composer     DashboardComposer
	avatars      AvatarFetcher
	renderer     PageRenderer
	cookieSecure bool
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(composer DashboardComposer, avatars AvatarFetcher, renderer PageRenderer, cookieSecure bool) *DashboardHandler {
	return &DashboardHandler{
		composer:     composer,
		avatars:      avatars,
		renderer:     renderer,
		cookieSecure: cookieSecure,
	}
}

// Show はダッシュボードを表示する。描画ごとにファクト生成を1回だけ要求する。
// GET /dashboard
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	state, _ := middleware.StateFromContext(r.Context())
	v, err := h.composer.Compose(r.Context(), state.Identity)
	if err != nil {
		if errors.Is(err, dashboard.ErrUnauthenticated) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		slog.Error("failed to compose dashboard", slog.String("error", err.Error()))
		page := basePage(w, r, "Something went wrong", h.cookieSecure)
		page.Message = "The dashboard could not be displayed. Please try again."
		h.renderer.Render(w, http.StatusInternalServerError, view.PageError, page)
		return
	}

	page := basePage(w, r, "Dashboard", h.cookieSecure)
	page.Dashboard = v
	page.StreamSession = true
	h.renderer.Render(w, http.StatusOK, view.PageDashboard, page)
}

// Avatar はログイン中ユーザーのプロフィール画像を中継する。
// GET /dashboard/avatar
func (h *DashboardHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	state, _ := middleware.StateFromContext(r.Context())
	if state.Identity == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	if state.Identity.PhotoURL == "" {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAvatarUnavailableError("no profile picture"))
		return
	}

	img, err := h.avatars.Fetch(r.Context(), state.Identity.PhotoURL)
	if err != nil {
		slog.Warn("failed to fetch avatar",
			slog.String("user_id", state.Identity.UID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewAvatarUnavailableError(avatarReason(err)))
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

func avatarReason(err error) string {
	switch {
	case errors.Is(err, security.ErrNotImage):
		return "not an image"
	case errors.Is(err, security.ErrImageTooLarge):
		return "image too large"
	default:
		return "upstream error"
	}
}

// Root はガードで振り分けられなかった場合にログインページへ送る。
// GET /
func Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
