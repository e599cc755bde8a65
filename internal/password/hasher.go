// Package password はパスワードのハッシュ化と検証を提供する。
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はbcryptによるパスワードハッシュの生成と検証を提供する。
type Hasher struct {
	cost int
}

// NewHasher はデフォルトコストのHasherを生成する。
func NewHasher() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// NewHasherWithCost は指定コストのHasherを生成する。テストで低コストを使う用途。
func NewHasherWithCost(cost int) *Hasher {
	return &Hasher{cost: cost}
}

// Hash は平文パスワードからソルト付きハッシュを生成する。
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードがハッシュと一致するかを検証する。
// digestが空の場合（OAuth専用ユーザー）はエラーを起こさずfalseを返す。
// 不一致・ハッシュ形式不正のいずれもfalseとして扱い、原因は区別しない。
func (h *Hasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
