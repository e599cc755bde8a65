package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// HTMLタグが除去されテキストのみ残ることを検証
func TestNameSanitizer_StripsHTML(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"平文はそのまま", "Alice Example", "Alice Example"},
		{"scriptタグを除去", `<script>alert(1)</script>Alice`, "Alice"},
		{"imgタグを除去", `Alice<img src=x onerror=alert(1)>`, "Alice"},
		{"装飾タグもテキスト化", "<b>Alice</b>", "Alice"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 前後の空白と制御文字が除去されることを検証
func TestNameSanitizer_TrimsWhitespaceAndControlChars(t *testing.T) {
	s := NewNameSanitizer()

	got := s.Sanitize("  Alice\x00\x1fExample  ")
	if got != "AliceExample" {
		t.Errorf("Sanitize() = %q, want %q", got, "AliceExample")
	}
}

// 最大長を超える表示名が切り詰められることを検証
func TestNameSanitizer_TruncatesLongName(t *testing.T) {
	s := NewNameSanitizer()

	long := strings.Repeat("a", maxDisplayNameLength+50)
	got := s.Sanitize(long)
	if len(got) != maxDisplayNameLength {
		t.Errorf("len(Sanitize()) = %d, want %d", len(got), maxDisplayNameLength)
	}
}

// マルチバイト文字の表示名でも切り詰め結果が正しいUTF-8であることを検証。
// バイト位置での切り詰めはルーンを分断し、DBが拒否する不正なバイト列を生むため。
func TestNameSanitizer_TruncatesOnRuneBoundary(t *testing.T) {
	s := NewNameSanitizer()

	// "ab" + 3バイト文字×100 = 302バイト。255バイト目は「あ」の途中に落ちる
	long := "ab" + strings.Repeat("あ", 100)
	got := s.Sanitize(long)

	if !utf8.ValidString(got) {
		t.Errorf("Sanitize() produced invalid UTF-8: trailing bytes %x", got[len(got)-4:])
	}
	if len(got) > maxDisplayNameLength {
		t.Errorf("len(Sanitize()) = %d, want <= %d", len(got), maxDisplayNameLength)
	}
	if !strings.HasPrefix(got, "abあ") {
		t.Errorf("Sanitize() = %q..., want prefix %q", got[:6], "abあ")
	}
}

// HTMLエンティティが実体文字に戻されることを検証（出力は平文フィールド）
func TestNameSanitizer_UnescapesEntities(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"アンパサンドを保持", "Alice & Bob", "Alice & Bob"},
		{"エスケープ済み入力も実体文字へ", "Alice &amp; Bob", "Alice & Bob"},
		{"引用符を保持", `O'Brien "Ace"`, `O'Brien "Ace"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して冪等であることを検証
func TestNameSanitizer_Idempotent(t *testing.T) {
	s := NewNameSanitizer()

	input := `<i>Alice</i> &amp; Bob`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize not idempotent: %q != %q", once, twice)
	}
}
