package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// userColumns はusersテーブルのSELECT句。スキャン処理と対で管理する。
const userColumns = `id, username, email, email_verified, hashed_password, display_name, status, created_at, updated_at, last_login_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// findOne は1行取得クエリを実行してUserにスキャンする。
func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// email/usernameの一意性制約違反はmodel.ErrCodeAccountConflictとして返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
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
	return nil
}

// Update はユーザー情報を更新する。updated_atも更新される。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET username = $2, email = $3, email_verified = $4, hashed_password = $5,
		     display_name = $6, status = $7, updated_at = $8
		 WHERE id = $1`,
		user.ID,
		nullString(user.Username),
		user.Email,
		user.EmailVerified,
		nullString(user.HashedPassword),
		nullString(user.DisplayName),
		string(user.Status),
		time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return convertUniqueViolation(err)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// RecordLogin はログイン成功時刻をlast_login_atに記録する。
func (r *PostgresUserRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser は1行分のusersレコードをUserにスキャンする。
// NULL許可カラム（username、hashed_password、display_name、last_login_at）を
// Goのゼロ値に写像する。
func scanUser(row rowScanner) (*model.User, error) {
	var (
		user        model.User
		username    sql.NullString
		hashed      sql.NullString
		displayName sql.NullString
		status      string
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&user.ID, &username, &user.Email, &user.EmailVerified,
		&hashed, &displayName, &status,
		&user.CreatedAt, &user.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	user.Username = username.String
	user.HashedPassword = hashed.String
	user.DisplayName = displayName.String
	user.Status = model.UserStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

// nullString は空文字列をNULLとして保存するためのヘルパー。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
