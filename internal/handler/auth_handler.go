package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/model"
)

const (
	accessTokenCookie = "access_token"
	oauthStateCookie  = "oauth_state"
)

// AccountServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, email, username, plainPassword string) (*model.User, error)
	Authenticate(ctx context.Context, identifier, plainPassword string) (*model.User, error)
	ResolveIdentity(ctx context.Context, identity *model.VerifiedIdentity) (*model.User, error)
}

// TokenIssuerInterface はアクセストークン発行のインターフェース。
// token.Issuerの部分集合として定義する。
type TokenIssuerInterface interface {
	Issue(subject string, ttl time.Duration) (string, error)
}

// ProviderLookupInterface はOAuthプロバイダー検索のインターフェース。
// auth.ProviderRegistryの部分集合として定義する。
type ProviderLookupInterface interface {
	Lookup(name string) (auth.IdentityProvider, error)
}

// AuthMetrics は認証ハンドラーが記録するメトリクスのインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type AuthMetrics interface {
	RecordRegistration()
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordOAuthLogin(provider string)
	RecordTokenIssued()
}

// noopMetrics はメトリクス未設定時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordRegistration()     {}
func (noopMetrics) RecordLoginSuccess()     {}
func (noopMetrics) RecordLoginFailure()     {}
func (noopMetrics) RecordOAuthLogin(string) {}
func (noopMetrics) RecordTokenIssued()      {}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string        // ログイン完了後のリダイレクト先
	CookieDomain string        // アクセストークンCookieのドメイン
	CookieSecure bool          // Secure属性の有無
	TokenTTL     time.Duration // アクセストークンの有効期間
}

// AuthHandler はアカウント登録・ログイン・OAuth認証のHTTPハンドラー。
type AuthHandler struct {
	service   AccountServiceInterface
	issuer    TokenIssuerInterface
	providers ProviderLookupInterface
	metrics   AuthMetrics
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。metricsがnilの場合は記録しない。
func NewAuthHandler(
	service AccountServiceInterface,
	issuer TokenIssuerInterface,
	providers ProviderLookupInterface,
	m AuthMetrics,
	config AuthHandlerConfig,
) *AuthHandler {
	if m == nil {
		m = noopMetrics{}
	}
	return &AuthHandler{
		service:   service,
		issuer:    issuer,
		providers: providers,
		metrics:   m,
		config:    config,
	}
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse は外部公開用のユーザー表現。
// パスワードハッシュや内部カラムは含めない。
type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username,omitempty"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	DisplayName   string    `json:"display_name,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// toUserResponse はmodel.Userを公開表現に変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		DisplayName:   user.DisplayName,
		Status:        string(user.Status),
		CreatedAt:     user.CreatedAt,
	}
}

// tokenResponse はトークン発行レスポンスのボディ。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register はローカルアカウントを登録する。
// POST /api/v1/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの形式が正しくありません"))
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordRegistration()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// Login はパスワード認証でアクセストークンを発行する。
// POST /api/v1/login/access-token （フォーム: username, password）
// usernameフィールドにはメールアドレスまたはユーザー名を受け付ける。
// 認証失敗の原因（ユーザー不在・パスワード不一致）はレスポンスから区別できない。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("フォームの形式が正しくありません"))
		return
	}

	identifier := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := h.service.Authenticate(r.Context(), identifier, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		h.metrics.RecordLoginFailure()
		writeUnauthorizedResponse(w)
		return
	}

	tokenString, err := h.issueTokenWithCookie(w, user)
	if err != nil {
		slog.Error("failed to issue token", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordLoginSuccess()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: tokenString,
		TokenType:   "bearer",
	})
}

// Logout はアクセストークンCookieを削除する。
// POST /api/v1/logout
// トークンはステートレスなため、発行済みトークン自体は期限切れまで有効のまま。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "ログアウトしました。",
	})
}

// OAuthLogin はOAuthフローを開始する。
// GET /api/v1/login/oauth/{provider}
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	provider, err := h.providers.Lookup(providerName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	state, err := generateState()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理する。
// GET /api/v1/callback/oauth/{provider}?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	provider, err := h.providers.Lookup(providerName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// プロバイダーがエラーを返した場合（ユーザーによる拒否等）
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", providerName),
			slog.String("error", errParam),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewProviderError("認証がキャンセルまたは拒否されました"))
		return
	}

	// stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("provider", providerName))
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("stateパラメータが一致しません"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("認可コードがありません"))
		return
	}

	identity, err := provider.ExchangeCode(r.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewProviderError("プロバイダーとの通信に失敗しました"))
		return
	}

	user, err := h.service.ResolveIdentity(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.issueTokenWithCookie(w, user); err != nil {
		slog.Error("failed to issue token", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordOAuthLogin(providerName)

	// フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// issueTokenWithCookie はアクセストークンを発行してCookieに設定し、トークン文字列を返す。
// Cookie値は "Bearer <token>" 形式で、Authorizationヘッダーと同じ形で読める。
func (h *AuthHandler) issueTokenWithCookie(w http.ResponseWriter, user *model.User) (string, error) {
	tokenString, err := h.issuer.Issue(user.ID, h.config.TokenTTL)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "Bearer " + tokenString,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.metrics.RecordTokenIssued()

	return tokenString, nil
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
