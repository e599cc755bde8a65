// Package model はドメインモデルを定義する。
package model

import "time"

// UserStatus はユーザーアカウントの状態を表す。
// DBにはそのまま文字列として保存する。
type UserStatus string

const (
	// UserStatusPendingVerification はメール確認待ちの状態。ローカル登録直後の初期値。
	UserStatusPendingVerification UserStatus = "pending_verification"
	// UserStatusActive は有効なアカウント。OAuth経由で作成されたユーザーは最初からこの状態。
	UserStatusActive UserStatus = "active"
	// UserStatusInactive は無効化されたアカウント。
	UserStatusInactive UserStatus = "inactive"
)

// User はサービス利用ユーザーを表す。
// Emailはグローバルにユニークで必須。Usernameは任意だが、設定されている場合はユニーク。
// HashedPasswordはOAuth専用ユーザーの場合は空文字列のまま（DB上はNULL）。
type User struct {
	ID             string
	Username       string // 未設定の場合は空文字列（DB上はNULL）
	Email          string
	EmailVerified  bool
	HashedPassword string // OAuth専用ユーザーの場合は空文字列（DB上はNULL）
	DisplayName    string // OAuthプロバイダー由来の表示名。ユニーク制約なし。
	Status         UserStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

// UserOAuthAccount は外部IdPとの紐付け情報を表す。
// (ProviderName, ProviderUserID) の組はグローバルにユニークで、
// 1つの外部アイデンティティは最大1人のローカルユーザーにしか対応しない。
// ユーザー削除時はCASCADEで削除される。
type UserOAuthAccount struct {
	ID             string
	UserID         string
	ProviderName   string
	ProviderUserID string
	CreatedAt      time.Time
}

// VerifiedIdentity は外部IdPが検証済みとして主張するアイデンティティを表す。
// 認可コード交換が完了した後のプロバイダー応答から構築される。
type VerifiedIdentity struct {
	ProviderName   string
	ProviderUserID string
	Email          string
	DisplayName    string
}
