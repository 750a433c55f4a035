// Package firebase はFirebase Authenticationを認証プロバイダとして利用するアダプタを提供する。
// パスワード認証はIdentity Toolkit REST API、プリンシパルの照会はAdmin SDKで行う。
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hitoshi/qredentials/internal/identity"
	"github.com/hitoshi/qredentials/internal/model"
)

const defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

// Config はFirebaseプロバイダの設定。
type Config struct {
	APIKey          string
	ProjectID       string
	CredentialsFile string

	// テスト用にオーバーライド可能なURL
	IdentityToolkitURL string
	HTTPClient         *http.Client
}

// userGetter はAdmin SDKのauth.Clientのうち照会に使う部分。
type userGetter interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// Provider はFirebase Authenticationによる認証を提供する。
type Provider struct {
	config Config
	client *http.Client
	admin  userGetter

	isUserNotFound func(error) bool
}

// New はAdmin SDKを初期化してProviderを生成する。
// CredentialsFileが空の場合はApplication Default Credentialsを使用する。
func New(ctx context.Context, config Config) (*Provider, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: config.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}

	return newProvider(config, client), nil
}

func newProvider(config Config, admin userGetter) *Provider {
	if config.IdentityToolkitURL == "" {
		config.IdentityToolkitURL = defaultIdentityToolkitURL
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Provider{
		config:         config,
		client:         client,
		admin:          admin,
		isUserNotFound: auth.IsUserNotFound,
	}
}

// credentialsRequest はsignInWithPassword・signUpのリクエスト。
type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// tokenResponse はsignInWithPassword・signUpのレスポンス。
type tokenResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

// lookupResponse はaccounts:lookupのレスポンス。
type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoUrl"`
		CreatedAt   string `json:"createdAt"` // エポックミリ秒の文字列
		Disabled    bool   `json:"disabled"`
	} `json:"users"`
}

// errorResponse はIdentity Toolkitのエラーレスポンス。
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn はメールアドレスとパスワードで認証する。
func (p *Provider) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	return p.authenticate(ctx, "signin", "accounts:signInWithPassword", email, password)
}

// SignUp はアカウントを作成する。
func (p *Provider) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	return p.authenticate(ctx, "signup", "accounts:signUp", email, password)
}

// SignOut はプロバイダ側のサインアウトを行う。
// IDトークンはサーバーに保持しないため、失効させるものはない。
func (p *Provider) SignOut(_ context.Context, _ string) error {
	return nil
}

// Lookup はAdmin SDKでプリンシパルを照会する。
// 削除済み・無効化済みの場合はnilを返す。
func (p *Provider) Lookup(ctx context.Context, uid string) (*model.Identity, error) {
	rec, err := p.admin.GetUser(ctx, uid)
	if err != nil {
		if p.isUserNotFound(err) {
			return nil, nil
		}
		return nil, model.NewAuthError("lookup", model.AuthErrUnavailable, err)
	}
	if rec == nil || rec.UserInfo == nil || rec.Disabled {
		return nil, nil
	}

	ident := &model.Identity{
		UID:         rec.UID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
	}
	if rec.UserMetadata != nil && rec.UserMetadata.CreationTimestamp > 0 {
		ident.CreatedAt = time.UnixMilli(rec.UserMetadata.CreationTimestamp).UTC()
	}
	return ident, nil
}

// authenticate は資格情報をエンドポイントへ送り、発行されたIDトークンでプロフィールを取得する。
func (p *Provider) authenticate(ctx context.Context, op, endpoint, email, password string) (*model.Identity, error) {
	var tok tokenResponse
	err := p.call(ctx, op, endpoint, credentialsRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.IDToken == "" || tok.LocalID == "" {
		return nil, model.NewAuthError(op, model.AuthErrUnknown, errors.New("empty token in response"))
	}

	var lookup lookupResponse
	if err := p.call(ctx, op, "accounts:lookup", map[string]string{"idToken": tok.IDToken}, &lookup); err != nil {
		return nil, err
	}
	if len(lookup.Users) == 0 {
		return nil, model.NewAuthError(op, model.AuthErrUnknown, errors.New("lookup returned no users"))
	}

	u := lookup.Users[0]
	ident := &model.Identity{
		UID:         u.LocalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
	if ms, err := strconv.ParseInt(u.CreatedAt, 10, 64); err == nil && ms > 0 {
		ident.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return ident, nil
}

const apiKeyHeader = "X-Goog-Api-Key"

// call はIdentity ToolkitのエンドポイントへJSONをPOSTする。
// 通信失敗はunavailable、エラーレスポンスはメッセージに応じた種別に分類する。
func (p *Provider) call(ctx context.Context, op, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return model.NewAuthError(op, model.AuthErrUnknown, err)
	}

	// APIキーはURLに載せずヘッダーで送る。
	url := fmt.Sprintf("%s/%s", p.config.IdentityToolkitURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return model.NewAuthError(op, model.AuthErrUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.NewAuthError(op, model.AuthErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.NewAuthError(op, model.AuthErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if err := json.Unmarshal(data, &er); err != nil || er.Error.Message == "" {
			kind := model.AuthErrUnknown
			if resp.StatusCode >= 500 {
				kind = model.AuthErrUnavailable
			}
			return model.NewAuthError(op, kind, fmt.Errorf("status %d", resp.StatusCode))
		}
		return model.NewAuthError(op, classify(er.Error.Message), errors.New(er.Error.Message))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return model.NewAuthError(op, model.AuthErrUnknown, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// classify はIdentity Toolkitのエラーメッセージを種別に変換する。
// "WEAK_PASSWORD : Password should be at least 6 characters" のような詳細付きにも対応する。
func classify(message string) model.AuthErrorKind {
	code, _, _ := strings.Cut(message, " : ")
	switch strings.TrimSpace(code) {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return model.AuthErrInvalidCredentials
	case "EMAIL_EXISTS":
		return model.AuthErrEmailInUse
	case "WEAK_PASSWORD":
		return model.AuthErrWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return model.AuthErrInvalidEmail
	case "USER_DISABLED":
		return model.AuthErrUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return model.AuthErrTooManyRequests
	default:
		return model.AuthErrUnknown
	}
}

// compile-time interface check
var _ identity.Provider = (*Provider)(nil)
