// Package auth はアカウント登録、パスワード認証、OAuthアカウント解決のビジネスロジックを提供する。
package auth

import (
	"context"

	"github.com/hitoshi/authgate/internal/model"
)

// IdentityProvider はOAuth認証プロバイダーのインターフェース。
// 複数IdP（Google, GitHub等）に対応するための抽象化。
// リダイレクト・コード交換プロトコルの詳細は各実装が隠蔽し、
// コアは検証済みアイデンティティのみを消費する。
type IdentityProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証済みアイデンティティを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.VerifiedIdentity, error)
}

// ProviderRegistry は許可リストに基づくプロバイダーの登録と検索を提供する。
// 許可リスト外のプロバイダー名はLookupで拒否される。
type ProviderRegistry struct {
	providers map[string]IdentityProvider
}

// NewProviderRegistry は空のProviderRegistryを生成する。
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]IdentityProvider),
	}
}

// Register はプロバイダーを名前で登録する。起動時のワイヤリングでのみ呼ばれる想定。
func (r *ProviderRegistry) Register(name string, p IdentityProvider) {
	r.providers[name] = p
}

// Lookup は登録済みプロバイダーを検索する。
// 未登録の名前の場合はUnsupportedProviderエラーを返す。
func (r *ProviderRegistry) Lookup(name string) (IdentityProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, model.NewUnsupportedProviderError(name)
	}
	return p, nil
}

// Names は登録済みプロバイダー名の一覧を返す。ログ出力用。
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
