// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/token"
)

const (
	// accessTokenCookieName はアクセストークンを保持するCookie名。
	accessTokenCookieName = "access_token"
	// bearerPrefix はAuthorizationヘッダーおよびCookie値のスキーム接頭辞。
	bearerPrefix = "Bearer "
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenDecoder はベアラートークンの検証に必要なインターフェース。
// token.Issuerの部分集合として定義する。
type TokenDecoder interface {
	Decode(tokenString string) (*token.Claims, error)
}

// NewBearerAuthMiddleware はベアラートークンを検証するミドルウェアを返す。
// トークンはAuthorizationヘッダーを優先し、なければaccess_token Cookieから読む
// （Cookie値は "Bearer <token>" 形式）。
// 検証済みユーザーIDをリクエストコンテキストに注入する。
// トークンの欠落・不正・期限切れはいずれも同じ401レスポンスになる。
func NewBearerAuthMiddleware(decoder TokenDecoder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				WriteUnauthorizedResponse(w)
				return
			}

			claims, err := decoder.Decode(tokenString)
			if err != nil {
				WriteUnauthorizedResponse(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はリクエストからベアラートークンを取り出す。
// 見つからない場合は空文字列を返す。
func extractBearerToken(r *http.Request) string {
	// 1. Authorizationヘッダー
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}

	// 2. access_token Cookie（"Bearer <token>" 形式で保存されている）
	cookie, err := r.Cookie(accessTokenCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	if strings.HasPrefix(cookie.Value, bearerPrefix) {
		return strings.TrimPrefix(cookie.Value, bearerPrefix)
	}
	return ""
}

// WriteUnauthorizedResponse は401レスポンスを統一フォーマットで書き込む。
// WWW-Authenticateヘッダーでベアラースキームを要求する。
func WriteUnauthorizedResponse(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthFailedError())
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
