package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/authgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenDecoder      middleware.TokenDecoder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 観測系依存（nil可）
	Logger      *slog.Logger
	HTTPMetrics middleware.HTTPMetrics

	// ハンドラー依存
	AccountService AccountServiceInterface
	UserService    UserServiceInterface
	TokenIssuer    TokenIssuerInterface
	Providers      ProviderLookupInterface
	Metrics        AuthMetrics
	AuthConfig     AuthHandlerConfig

	// ヘルスチェック依存（nil可。設定時はDB疎通も確認する）
	HealthPinger HealthPinger
}

// HealthPinger はヘルスチェックでの疎通確認インターフェース。
type HealthPinger interface {
	Ping() error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → (ルートごとの認証・レート制限)
//
// 登録・ログインは未認証なのでIPレート制限を、/users/meはベアラー認証を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AccountService, deps.TokenIssuer, deps.Providers, deps.Metrics, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)

	// ヘルスチェック
	r.Get("/health", NewHealthHandler(deps.HealthPinger))

	r.Route("/api/v1", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.With(deps.RateLimiter.RegisterMiddleware()).Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login/access-token", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		// OAuthフロー
		r.Get("/login/oauth/{provider}", authHandler.OAuthLogin)
		r.Get("/callback/oauth/{provider}", authHandler.OAuthCallback)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(deps.TokenDecoder))

			r.Get("/users/me", userHandler.Me)
		})
	})

	return r
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// pingerがnilでなければDB疎通も確認し、失敗時は503を返す。
func NewHealthHandler(pinger HealthPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if pinger != nil {
			if err := pinger.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
