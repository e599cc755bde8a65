// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeDuplicateUsername   = "DUPLICATE_USERNAME"
	ErrCodeAccountConflict     = "ACCOUNT_CONFLICT"
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	ErrCodeProviderError       = "PROVIDER_ERROR"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  "このユーザー名は既に使用されています。",
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewAccountConflictError はコミット時に一意性制約違反が検出された場合のエラーを生成する。
// 事前チェックをすり抜けた同時登録のレースをストレージ層の制約で捕捉したことを表す。
func NewAccountConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountConflict,
		Message:  "このメールアドレスまたはユーザー名のアカウントは既に存在します。",
		Category: "validation",
		Action:   "別のメールアドレス・ユーザー名を使用するか、ログインしてください。",
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
// ユーザー不在・パスワード不一致・トークン不正のいずれでも同一のエラーを返し、
// 原因を呼び出し側に区別させない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "ユーザー名/メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "認証情報を確認して再度お試しください。",
	}
}

// NewUnsupportedProviderError は許可リスト外のOAuthプロバイダーエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("プロバイダー '%s' はサポートされていません。", provider),
		Category: "validation",
		Action:   "サポートされているプロバイダーを指定してください。",
	}
}

// NewProviderError はOAuthプロバイダーから報告されたエラーを生成する。
func NewProviderError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  fmt.Sprintf("OAuth認証でエラーが発生しました: %s", reason),
		Category: "auth",
		Action:   "最初からログインをやり直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
