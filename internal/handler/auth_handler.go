package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/qredentials/internal/flash"
	"github.com/hitoshi/qredentials/internal/form"
	"github.com/hitoshi/qredentials/internal/identity"
	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/model"
	"github.com/hitoshi/qredentials/internal/view"
)

// トースト文言。
const (
	titleLoginSuccess    = "Login Successful"
	msgLoginSuccess      = "Welcome back!"
	titleLoginFailed     = "Login Failed"
	titleRegisterSuccess = "Registration Successful"
	msgRegisterSuccess   = "Your account has been created. Welcome!"
	titleRegisterFailed  = "Registration Failed"
	titleLogoutSuccess   = "Logged Out"
	msgLogoutSuccess     = "You have been successfully logged out."
	titleLogoutFailed    = "Logout Failed"
	msgLogoutFailed      = "Could not log you out. Please try again."
)

// Authenticator は認証ハンドラーが必要とするセッションストアのインターフェース。
type Authenticator interface {
	Login(ctx context.Context, sess *model.Session, in form.LoginInput) (*model.Identity, *model.Session, error)
	Register(ctx context.Context, sess *model.Session, in form.RegisterInput) (*model.Identity, *model.Session, error)
	Logout(ctx context.Context, sess *model.Session) error
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	store    Authenticator
	renderer PageRenderer
	cookies  middleware.SessionConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(store Authenticator, renderer PageRenderer, cookies middleware.SessionConfig) *AuthHandler {
	return &AuthHandler{
		store:    store,
		renderer: renderer,
		cookies:  cookies,
	}
}

// LoginPage はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	page := basePage(w, r, "Login", h.cookies.CookieSecure)
	h.renderer.Render(w, http.StatusOK, view.PageLogin, page)
}

// RegisterPage は登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	page := basePage(w, r, "Register", h.cookies.CookieSecure)
	h.renderer.Render(w, http.StatusOK, view.PageRegister, page)
}

// Login はフォームを検証してログインする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	in, err := form.DecodeLogin(r)
	if err != nil {
		h.renderFailure(w, r, view.PageLogin, "Login", in.Email, http.StatusBadRequest,
			flash.Error(titleLoginFailed, model.MsgLoginFailed))
		return
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.renderFailure(w, r, view.PageLogin, "Login", in.Email, http.StatusInternalServerError,
			flash.Error(titleLoginFailed, model.MsgLoginFailed))
		return
	}

	_, next, err := h.store.Login(r.Context(), sess, in)
	if err != nil {
		if fields, ok := identity.IsValidation(err); ok {
			h.renderInvalid(w, r, view.PageLogin, "Login", in.Email, fields)
			return
		}
		slog.Warn("login rejected", slog.String("error", err.Error()))
		h.renderFailure(w, r, view.PageLogin, "Login", in.Email, authFailureStatus(err),
			flash.Error(titleLoginFailed, model.LoginFailureMessage(err)))
		return
	}

	middleware.SetSessionCookie(w, next, h.cookies)
	flash.Write(w, flash.Success(titleLoginSuccess, msgLoginSuccess), h.cookies.CookieSecure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Register はフォームを検証してアカウントを作成する。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in, err := form.DecodeRegister(r)
	if err != nil {
		h.renderFailure(w, r, view.PageRegister, "Register", in.Email, http.StatusBadRequest,
			flash.Error(titleRegisterFailed, model.MsgRegisterFailed))
		return
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.renderFailure(w, r, view.PageRegister, "Register", in.Email, http.StatusInternalServerError,
			flash.Error(titleRegisterFailed, model.MsgRegisterFailed))
		return
	}

	_, next, err := h.store.Register(r.Context(), sess, in)
	if err != nil {
		if fields, ok := identity.IsValidation(err); ok {
			h.renderInvalid(w, r, view.PageRegister, "Register", in.Email, fields)
			return
		}
		slog.Warn("registration rejected", slog.String("error", err.Error()))
		h.renderFailure(w, r, view.PageRegister, "Register", in.Email, authFailureStatus(err),
			flash.Error(titleRegisterFailed, model.RegisterFailureMessage(err)))
		return
	}

	middleware.SetSessionCookie(w, next, h.cookies)
	flash.Write(w, flash.Success(titleRegisterSuccess, msgRegisterSuccess), h.cookies.CookieSecure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout はセッションを破棄してログインページへリダイレクトする。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.store.Logout(r.Context(), sess); err != nil {
		slog.Error("failed to logout",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		flash.Write(w, flash.Error(titleLogoutFailed, msgLogoutFailed), h.cookies.CookieSecure)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	middleware.ClearSessionCookie(w, h.cookies)
	flash.Write(w, flash.Success(titleLogoutSuccess, msgLogoutSuccess), h.cookies.CookieSecure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// renderInvalid はフィールドエラー付きでフォームを再表示する。
func (h *AuthHandler) renderInvalid(w http.ResponseWriter, r *http.Request, name, title, email string, fields form.Errors) {
	page := basePage(w, r, title, h.cookies.CookieSecure)
	page.Form = view.FormData{Email: email, Errors: fields}
	h.renderer.Render(w, http.StatusUnprocessableEntity, name, page)
}

// renderFailure はトースト付きでフォームを再表示する。入力済みのメールアドレスは保持する。
func (h *AuthHandler) renderFailure(w http.ResponseWriter, r *http.Request, name, title, email string, status int, notice flash.Notice) {
	page := basePage(w, r, title, h.cookies.CookieSecure)
	page.Form = view.FormData{Email: email}
	page.Flash = &notice
	h.renderer.Render(w, status, name, page)
}

// authFailureStatus はAuthErrorの種別をHTTPステータスに変換する。
func authFailureStatus(err error) int {
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		return http.StatusInternalServerError
	}
	switch authErr.Kind {
	case model.AuthErrInvalidCredentials, model.AuthErrUserDisabled:
		return http.StatusUnauthorized
	case model.AuthErrEmailInUse:
		return http.StatusConflict
	case model.AuthErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
