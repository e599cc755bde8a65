package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
)

// dummyDigest は存在しないユーザーに対する検証で使うbcryptハッシュ。
// ユーザー不在時とパスワード不一致時の応答時間を揃える。検証結果は常に破棄される。
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordHasher はパスワードのハッシュ化と検証のインターフェース。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify は平文とハッシュの一致を検証する。空ハッシュでは常にfalseを返す。
	Verify(plaintext, digest string) bool
}

// NameSanitizer はプロバイダー由来表示名のサニタイズインターフェース。
type NameSanitizer interface {
	Sanitize(rawName string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	MinPasswordLength int // パスワードの最小文字数
}

// Service はアカウント登録・認証・OAuthアカウント解決のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	accountRepo repository.OAuthAccountRepository
	hasher      PasswordHasher
	sanitizer   NameSanitizer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	accountRepo repository.OAuthAccountRepository,
	hasher PasswordHasher,
	sanitizer NameSanitizer,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		accountRepo: accountRepo,
		hasher:      hasher,
		sanitizer:   sanitizer,
		config:      config,
	}
}

// Register はローカルアカウントを登録する。
// 重複チェックは事前に行うが、同時登録のレースはストレージ層の一意性制約で捕捉され、
// リポジトリがドメイン競合エラーに変換して返す。
// 作成されたユーザーはメール確認待ち状態（pending_verification）。
func (s *Service) Register(ctx context.Context, email, username, plainPassword string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if err := s.validateRegistration(email, username, plainPassword); err != nil {
		return nil, err
	}

	// 事前チェック: メールアドレスの重複
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	// 事前チェック: ユーザー名の重複（指定時のみ）
	if username != "" {
		existing, err := s.userRepo.FindByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if existing != nil {
			return nil, model.NewDuplicateUsernameError()
		}
	}

	hashed, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:             uuid.New().String(),
		Username:       username,
		Email:          email,
		EmailVerified:  false,
		HashedPassword: hashed,
		Status:         model.UserStatusPendingVerification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// レースで挿入に負けた場合はリポジトリがACCOUNT_CONFLICTに変換済み
		return nil, err
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// validateRegistration は登録入力を検証する。
func (s *Service) validateRegistration(email, username, plainPassword string) error {
	if email == "" || !strings.Contains(email, "@") {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(plainPassword) < s.config.MinPasswordLength {
		return model.NewValidationError(
			fmt.Sprintf("パスワードは%d文字以上で指定してください", s.config.MinPasswordLength))
	}
	if username != "" && (len(username) < 3 || len(username) > 50) {
		return model.NewValidationError("ユーザー名は3〜50文字で指定してください")
	}
	return nil
}

// Authenticate は識別子（メールアドレスまたはユーザー名）とパスワードでユーザーを認証する。
// 識別子はまずメールアドレスとして検索し、"@"を含まない場合のみユーザー名でも検索する。
// ユーザー不在・パスワードハッシュなし（OAuth専用）・パスワード不一致のいずれも
// (nil, nil) を返し、呼び出し側に原因を区別させない。
func (s *Service) Authenticate(ctx context.Context, identifier, plainPassword string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	if user == nil && !strings.Contains(identifier, "@") {
		user, err = s.userRepo.FindByUsername(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user by username: %w", err)
		}
	}

	if user == nil || user.HashedPassword == "" {
		// ユーザー不在でもbcrypt比較を1回実行して応答時間を揃える
		s.hasher.Verify(plainPassword, dummyDigest)
		return nil, nil
	}

	if !s.hasher.Verify(plainPassword, user.HashedPassword) {
		return nil, nil
	}

	s.recordLogin(ctx, user)

	return user, nil
}

// GetUser はIDでユーザーを取得する。存在しない場合はUserNotFoundエラーを返す。
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// ResolveIdentity は検証済み外部アイデンティティをローカルユーザーに解決する。
// 優先順位:
//  1. (provider, provider_user_id) の完全一致 → 所有ユーザーをそのまま返す
//  2. メールアドレス一致 → 既存ユーザーにアカウントを紐付け、email_verifiedをtrueにする（原子的）
//  3. どちらも不一致 → 新規ユーザー（active、メール確認済み）とアカウントを同一トランザクションで作成
//
// いずれの分岐でも結果はちょうど1つのUserで、
// (provider, provider_user_id) あたり最大1つのOAuthAccountという不変条件が保たれる。
// 同時の初回ログイン同士のレースで挿入に負けた場合は、勝者の結果を採用して再解決する。
func (s *Service) ResolveIdentity(ctx context.Context, identity *model.VerifiedIdentity) (*model.User, error) {
	if identity.ProviderName == "" || identity.ProviderUserID == "" || identity.Email == "" {
		return nil, model.NewProviderError("プロバイダー応答に必要な項目が含まれていません")
	}

	email := strings.TrimSpace(strings.ToLower(identity.Email))

	// 1. 既存のOAuthアカウントを検索（リピートログインの高速パス）
	user, err := s.findLinkedUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user != nil {
		slog.Info("oauth user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.ProviderName),
		)
		s.recordLogin(ctx, user)
		return user, nil
	}

	// 2. メールアドレス一致による既存ユーザーへの紐付け
	user, err = s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	if user != nil {
		account := &model.UserOAuthAccount{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			ProviderName:   identity.ProviderName,
			ProviderUserID: identity.ProviderUserID,
			CreatedAt:      time.Now(),
		}
		if err := s.accountRepo.LinkToUser(ctx, account); err != nil {
			return s.resolveConflict(ctx, identity, err)
		}

		// プロバイダーを権威ある情報源として扱い、メール確認済みに更新された状態を反映する
		user.EmailVerified = true

		slog.Info("oauth account linked to existing user",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.ProviderName),
		)
		s.recordLogin(ctx, user)
		return user, nil
	}

	// 3. 新規ユーザーのプロビジョニング
	// 外部IdPのアイデンティティは信頼できるため、確認待ちゲートをスキップして
	// 最初からactive・メール確認済みとする。
	// ユーザー名は設定せず、プロバイダー由来の名前はdisplay_nameにのみ保存する
	// （既存ユーザー名との衝突をそもそも発生させない）。
	now := time.Now()
	newUser := &model.User{
		ID:            uuid.New().String(),
		Email:         email,
		EmailVerified: true,
		DisplayName:   s.sanitizer.Sanitize(identity.DisplayName),
		Status:        model.UserStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	account := &model.UserOAuthAccount{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		ProviderName:   identity.ProviderName,
		ProviderUserID: identity.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.accountRepo.CreateUserWithAccount(ctx, newUser, account); err != nil {
		return s.resolveConflict(ctx, identity, err)
	}

	slog.Info("new oauth user created",
		slog.String("user_id", newUser.ID),
		slog.String("email", newUser.Email),
		slog.String("provider", identity.ProviderName),
	)

	return newUser, nil
}

// findLinkedUser は(provider, provider_user_id)でOAuthアカウントを検索し、
// 所有ユーザーを返す。アカウントが存在しない場合は(nil, nil)。
func (s *Service) findLinkedUser(ctx context.Context, identity *model.VerifiedIdentity) (*model.User, error) {
	account, err := s.accountRepo.FindByProviderAndSubject(ctx, identity.ProviderName, identity.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth account: %w", err)
	}
	if account == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account owner: %w", err)
	}
	if user == nil {
		// FKとCASCADE削除がある限り起こらないはずの不整合
		return nil, fmt.Errorf("oauth account %s references missing user %s", account.ID, account.UserID)
	}
	return user, nil
}

// resolveConflict は初回OAuthログイン同士のレースで挿入に負けた場合の再解決を行う。
// 一意性制約違反（ドメイン競合エラー）の場合のみ、勝者が作成した紐付けを読み直して返す。
// それ以外のエラーはそのまま伝播する。
func (s *Service) resolveConflict(ctx context.Context, identity *model.VerifiedIdentity, cause error) (*model.User, error) {
	var apiErr *model.APIError
	if !errors.As(cause, &apiErr) || apiErr.Code != model.ErrCodeAccountConflict {
		return nil, cause
	}

	user, err := s.findLinkedUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// 勝者の挿入が(provider, subject)以外の制約（email等）によるもので、
		// 再解決できない場合は競合エラーを呼び出し側に返す
		return nil, cause
	}

	slog.Info("oauth race resolved to existing link",
		slog.String("user_id", user.ID),
		slog.String("provider", identity.ProviderName),
	)
	return user, nil
}

// recordLogin はログイン成功時刻を記録する。失敗しても認証自体は成功として扱う。
func (s *Service) recordLogin(ctx context.Context, user *model.User) {
	if err := s.userRepo.RecordLogin(ctx, user.ID, time.Now()); err != nil {
		slog.Warn("failed to record login time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}
