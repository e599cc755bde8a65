// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// 一意性制約（email、username）はストレージ層で強制され、
// コミット時の制約違反はドメインエラー（*model.APIError）に変換して返す。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// email/usernameの一意性制約違反はmodel.ErrCodeAccountConflictとして返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報を更新する。updated_atも更新される。
	Update(ctx context.Context, user *model.User) error

	// RecordLogin はログイン成功時刻をlast_login_atに記録する。
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// OAuthAccountRepository は外部IdP紐付け情報の永続化インターフェース。
// (provider_name, provider_user_id) の一意性制約はストレージ層で強制される。
type OAuthAccountRepository interface {
	// FindByProviderAndSubject はプロバイダー名とプロバイダー側ユーザーIDで
	// OAuthアカウントを検索する。見つからない場合はnilを返す。
	FindByProviderAndSubject(ctx context.Context, providerName, providerUserID string) (*model.UserOAuthAccount, error)

	// LinkToUser は既存ユーザーにOAuthアカウントを紐付け、同一トランザクションで
	// ユーザーのemail_verifiedをtrueに更新する。両方コミットされるか両方ロールバックされる。
	LinkToUser(ctx context.Context, account *model.UserOAuthAccount) error

	// CreateUserWithAccount はユーザーとOAuthアカウントを同一トランザクションで作成する。
	// 外部キーを解決するためユーザー行を先に挿入する。
	CreateUserWithAccount(ctx context.Context, user *model.User, account *model.UserOAuthAccount) error
}
