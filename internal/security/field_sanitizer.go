// Package security はアプリケーションのセキュリティ機能を提供する。
//
// FieldSanitizerService は外部入力から得られたテキストフィールドを
// 結果XMLへ安全に埋め込める形へ正規化する。予約文字を先に
// エスケープしてからbluemondayのStrictPolicyを通すことで、
// マークアップとして解釈される余地を残さずテキストを保全する。
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FieldSanitizerService はテキストフィールドのサニタイズ機能のインターフェースを定義する。
// 家族構成員の氏名・続柄フィールドと、外部APIから取得した
// 不動産情報フィールドの両方で使用される。
type FieldSanitizerService interface {
	// Sanitize はテキストフィールドをサニタイズして安全な文字列を返す。
	// 処理内容:
	//   - 前後の空白を除去し、連続する空白文字を半角スペース1個に正規化する
	//   - XMLの予約文字（< > & " '）をHTMLエンティティへエスケープする
	// テキストの内容は削除されず、エスケープ形で保全される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// whitespaceRe は連続する空白文字（改行やタブを含む）にマッチする。
var whitespaceRe = regexp.MustCompile(`\s+`)

// reservedReplacer は予約文字をHTMLエンティティへ置き換える。
// エスケープ形式はbluemondayがテキスト出力に使う形式と揃えてあり、
// StrictPolicyを通しても表現が変わらない。&を最初に置き換えるため、
// 後続の置き換えが生成するエンティティが二重にエスケープされることはない。
var reservedReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
	"'", "&#39;",
)

// fieldSanitizer はFieldSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

// NewFieldSanitizer はFieldSanitizerServiceの新しいインスタンスを生成する。
// bluemondayのStrictPolicy（許可タグなし）を使用する。
func NewFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストフィールドをサニタイズして安全な文字列を返す。
// 予約文字のエスケープを空白正規化の後、ポリシー適用の前に行う。
// エスケープ後の文字列には生の<が残らないため、StrictPolicyが
// タグとみなして内容ごと削除することはなく、テキストは常に保全される。
func (s *fieldSanitizer) Sanitize(raw string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	escaped := reservedReplacer.Replace(normalized)
	return s.policy.Sanitize(escaped)
}
