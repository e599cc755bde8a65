package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// ハッシュ化したパスワードが元の平文で検証できることを検証
func TestHasher_HashAndVerify_Roundtrip(t *testing.T) {
	h := NewHasherWithCost(bcrypt.MinCost)

	digest, err := h.Hash("S3cureP@ssw0rd")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if digest == "" {
		t.Fatal("expected non-empty digest")
	}
	if digest == "S3cureP@ssw0rd" {
		t.Fatal("digest must not equal plaintext")
	}

	if !h.Verify("S3cureP@ssw0rd", digest) {
		t.Error("Verify() = false, want true for matching password")
	}
}

// 異なるパスワードでは検証が失敗することを検証
func TestHasher_Verify_WrongPassword(t *testing.T) {
	h := NewHasherWithCost(bcrypt.MinCost)

	digest, err := h.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if h.Verify("wrong-password", digest) {
		t.Error("Verify() = true, want false for wrong password")
	}
}

// 空のハッシュ（OAuth専用ユーザー）では常にfalseを返すことを検証
func TestHasher_Verify_EmptyDigest(t *testing.T) {
	h := NewHasher()

	if h.Verify("any-password", "") {
		t.Error("Verify() with empty digest = true, want false")
	}
}

// 不正な形式のハッシュでもpanicせずfalseを返すことを検証
func TestHasher_Verify_MalformedDigest(t *testing.T) {
	h := NewHasher()

	if h.Verify("any-password", "not-a-bcrypt-hash") {
		t.Error("Verify() with malformed digest = true, want false")
	}
}

// 同じ平文でもソルトにより毎回異なるハッシュが生成されることを検証
func TestHasher_Hash_Salted(t *testing.T) {
	h := NewHasherWithCost(bcrypt.MinCost)

	d1, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	d2, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if d1 == d2 {
		t.Error("expected different digests for same plaintext (random salt)")
	}
	if !strings.HasPrefix(d1, "$2") {
		t.Errorf("digest %q does not look like bcrypt output", d1)
	}
}
