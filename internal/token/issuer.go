// Package token は署名付きベアラートークンの発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン検証エラー。HTTP境界ではどちらも同一の認証失敗として扱う。
var (
	// ErrInvalidToken は署名不正・構造不正のトークンを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken は有効期限切れのトークンを表す。
	ErrExpiredToken = errors.New("token expired")
)

// Claims はデコード済みトークンの内容を表す。
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Issuer はHMAC-SHA256で署名されたJWTベアラートークンを発行・検証する。
// トークンはステートレスで、サーバー側の失効リストは参照しない。
// ログアウトはクライアント側Cookieの削除のみで、発行済みトークンは無効化されない。
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer はIssuerを生成する。secretはプロセス全体で共有する署名鍵。
func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewIssuerWithClock は時刻関数を差し替え可能なIssuerを生成する。テスト用。
func NewIssuerWithClock(secret string, now func() time.Time) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		now:    now,
	}
}

// Issue はsubjectとTTLを埋め込んだ署名付きトークンを発行する。
// 有効期限は発行時刻 + ttl。
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode はトークンを検証してClaimsを返す。
// 期限切れはErrExpiredToken、それ以外の検証失敗（署名不正・構造不正・
// subject欠落・exp欠落）はErrInvalidTokenを返す。
func (i *Issuer) Decode(tokenString string) (*Claims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
