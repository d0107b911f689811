// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind は処理エラーの分類を表す。
// EnrichmentKindを除く全ての分類はタスク全体を中断させ、
// タスクのerror_messageとしてメッセージがそのまま記録される。
type ErrorKind string

const (
	// ErrorKindInput は入力ファイルの欠如・サイズ超過・読み取り不能を表す。
	ErrorKindInput ErrorKind = "input"
	// ErrorKindMalformedXML はXMLパース失敗を表す。パーサー診断情報を含む。
	ErrorKindMalformedXML ErrorKind = "malformed_xml"
	// ErrorKindSchema はMember要素が1つも存在しないことを表す。
	ErrorKindSchema ErrorKind = "schema"
	// ErrorKindValidation は業務ルール違反を表す。永続化前に全件検証で検出される。
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindPersistence は制約違反・直列化競合・保存失敗を表す。
	// トランザクション全体がロールバックされる。
	ErrorKindPersistence ErrorKind = "persistence"
	// ErrorKindEnrichment は構成員単位の照会失敗を表す。
	// Gateway内で回復されるため、タスクを失敗させることはない。
	ErrorKindEnrichment ErrorKind = "enrichment"
	// ErrorKindOutput は結果ディレクトリ作成・結果XML書き込みの失敗を表す。
	ErrorKindOutput ErrorKind = "output"
)

// XMLDiagnostic はXMLパーサーの診断情報（行番号とメッセージ）を表す。
type XMLDiagnostic struct {
	Line    int
	Message string
}

// ProcessingError はパイプライン各段の型付きエラーを表す。
// コンポーネント境界では例外ではなく本エラー値を返し、
// Task State Machineだけがfailed遷移への写像を行う。
type ProcessingError struct {
	Kind        ErrorKind
	Message     string
	Diagnostics []XMLDiagnostic
	Err         error
}

// Error はerrorインターフェースを実装する。
func (e *ProcessingError) Error() string {
	return e.Message
}

// Unwrap は原因エラーを返す。
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ErrorKindOf はエラーからProcessingErrorの分類を取り出す。
// ProcessingErrorでない場合は空文字列を返す。
func ErrorKindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// NewInputError は入力ファイルエラーを生成する。
func NewInputError(message string) *ProcessingError {
	return &ProcessingError{Kind: ErrorKindInput, Message: message}
}

// NewMalformedXMLError はXMLパース失敗エラーを生成する。
// 診断情報は「Line N: メッセージ」形式で連結される。
func NewMalformedXMLError(diags []XMLDiagnostic) *ProcessingError {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, fmt.Sprintf("Line %d: %s", d.Line, d.Message))
	}
	return &ProcessingError{
		Kind:        ErrorKindMalformedXML,
		Message:     fmt.Sprintf("XMLの解析に失敗しました: %s", strings.Join(lines, "; ")),
		Diagnostics: diags,
	}
}

// NewSchemaError はMember要素未検出エラーを生成する。
func NewSchemaError() *ProcessingError {
	return &ProcessingError{
		Kind:    ErrorKindSchema,
		Message: "XML内に<Member>要素が見つかりません",
	}
}

// NewMissingFieldError は必須フィールド欠如エラーを生成する。
func NewMissingFieldError(field string) *ProcessingError {
	return &ProcessingError{
		Kind:    ErrorKindValidation,
		Message: fmt.Sprintf("必須フィールドがありません: %s", field),
	}
}

// NewInvalidDateFormatError は生年月日形式エラーを生成する。
func NewInvalidDateFormatError(value string) *ProcessingError {
	return &ProcessingError{
		Kind:    ErrorKindValidation,
		Message: fmt.Sprintf("生年月日の形式が不正です: %s（YYYY-MM-DD形式で指定してください）", value),
	}
}

// NewMultipleApplicantsError は申請者重複エラーを生成する。
func NewMultipleApplicantsError() *ProcessingError {
	return &ProcessingError{
		Kind:    ErrorKindValidation,
		Message: "XML内に複数の申請者が存在します",
	}
}

// NewNoApplicantError は申請者不在エラーを生成する。
func NewNoApplicantError() *ProcessingError {
	return &ProcessingError{
		Kind:    ErrorKindValidation,
		Message: "XML内に申請者が見つかりません（申請者フラグを持つ構成員が1人必要です）",
	}
}

// NewUnderageApplicantError は申請者未成年エラーを生成する。
func NewUnderageApplicantError(name string, age int) *ProcessingError {
	return &ProcessingError{
		Kind:    ErrorKindValidation,
		Message: fmt.Sprintf("申請者 %s は未成年です（年齢: %d）", name, age),
	}
}

// NewPersistenceError は永続化エラーを生成する。
func NewPersistenceError(message string, err error) *ProcessingError {
	return &ProcessingError{Kind: ErrorKindPersistence, Message: message, Err: err}
}

// NewOutputError は結果出力エラーを生成する。
func NewOutputError(message string, err error) *ProcessingError {
	return &ProcessingError{Kind: ErrorKindOutput, Message: message, Err: err}
}
