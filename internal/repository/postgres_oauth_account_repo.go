package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// PostgresOAuthAccountRepo はPostgreSQLを使用したOAuthアカウントリポジトリ。
type PostgresOAuthAccountRepo struct {
	db *sql.DB
}

// NewPostgresOAuthAccountRepo はPostgresOAuthAccountRepoを生成する。
func NewPostgresOAuthAccountRepo(db *sql.DB) *PostgresOAuthAccountRepo {
	return &PostgresOAuthAccountRepo{db: db}
}

// FindByProviderAndSubject はプロバイダー名とプロバイダー側ユーザーIDで
// OAuthアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresOAuthAccountRepo) FindByProviderAndSubject(ctx context.Context, providerName, providerUserID string) (*model.UserOAuthAccount, error) {
	account := &model.UserOAuthAccount{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider_name, provider_user_id, created_at
		 FROM user_oauth_accounts
		 WHERE provider_name = $1 AND provider_user_id = $2`,
		providerName, providerUserID,
	).Scan(&account.ID, &account.UserID, &account.ProviderName, &account.ProviderUserID, &account.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth account: %w", err)
	}

	return account, nil
}

// LinkToUser は既存ユーザーにOAuthアカウントを紐付け、同一トランザクションで
// ユーザーのemail_verifiedをtrueに更新する。両方コミットされるか両方ロールバックされる。
// (provider_name, provider_user_id) の一意性制約違反はドメイン競合エラーとして返す。
func (r *PostgresOAuthAccountRepo) LinkToUser(ctx context.Context, account *model.UserOAuthAccount) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_oauth_accounts (id, user_id, provider_name, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.UserID, account.ProviderName, account.ProviderUserID, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return convertUniqueViolation(err)
		}
		return fmt.Errorf("failed to insert oauth account: %w", err)
	}

	// プロバイダーを権威ある情報源として扱い、メールアドレスを確認済みにする
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET email_verified = true, updated_at = $2 WHERE id = $1`,
		account.UserID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return convertUniqueViolation(err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateUserWithAccount はユーザーとOAuthアカウントを同一トランザクションで作成する。
// 外部キーを解決するためユーザー行を先に挿入する。
// いずれかの一意性制約違反はドメイン競合エラーとして返す。
func (r *PostgresOAuthAccountRepo) CreateUserWithAccount(ctx context.Context, user *model.User, account *model.UserOAuthAccount) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, email_verified, hashed_password, display_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID,
		nullString(user.Username),
		user.Email,
		user.EmailVerified,
		nullString(user.HashedPassword),
		nullString(user.DisplayName),
		string(user.Status),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return convertUniqueViolation(err)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_oauth_accounts (id, user_id, provider_name, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.UserID, account.ProviderName, account.ProviderUserID, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return convertUniqueViolation(err)
		}
		return fmt.Errorf("failed to insert oauth account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return convertUniqueViolation(err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ OAuthAccountRepository = (*PostgresOAuthAccountRepo)(nil)
