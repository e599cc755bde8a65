// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はOAuthプロバイダーが主張する表示名をサニタイズし、
// 保存・表示時のXSSリスクからユーザーを保護する。
// bluemondayのStrictPolicyにより、HTMLタグ・属性を一切許可しない。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は保存する表示名の最大長。DBのカラム幅に合わせる。
const maxDisplayNameLength = 255

// NameSanitizerService は表示名サニタイズ機能のインターフェースを定義する。
// OAuthコールバックでプロバイダー応答を保存する前に使用される。
type NameSanitizerService interface {
	// Sanitize は表示名からHTMLタグと制御文字を除去し、前後の空白を取り除いて返す。
	// 出力はHTMLではなく平文フィールドなので、エンティティ参照は実体文字に戻す。
	// 最大長を超える場合はルーン境界で切り詰める。空文字列の入力には空文字列を返す。
	Sanitize(rawName string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストのみを残す。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からHTMLタグと制御文字を除去して返す。
func (s *nameSanitizer) Sanitize(rawName string) string {
	name := s.policy.Sanitize(rawName)

	// StrictPolicyはHTMLエンティティにエスケープして返すが、
	// 保存先は平文フィールドなので実体文字に戻す（"Alice &amp; Bob" → "Alice & Bob"）
	name = html.UnescapeString(name)

	// 制御文字を除去する
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	name = strings.TrimSpace(name)

	// マルチバイト文字を分断しないよう、ルーン境界まで戻って切り詰める
	if len(name) > maxDisplayNameLength {
		cut := maxDisplayNameLength
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	return name
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
