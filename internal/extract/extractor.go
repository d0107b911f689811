// Package extract は入力XMLから家族構成員レコードを抽出する機能を提供する。
//
// 入力ファイルは信頼できないソースから届くため、パース前にサイズ上限を
// 検査し、ストリーミングデコードで読み込む。encoding/xmlはDTDの外部実体を
// 解決しないため、実体展開による攻撃は構造的に成立しない。
package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/NodirbekRare/famestate/internal/model"
)

// Extractor は入力XMLファイルから構成員レコードを抽出する。
type Extractor struct {
	maxSize int64
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
// maxSizeは受け付ける入力ファイルの最大バイト数を指定する。
func NewExtractor(maxSize int64) *Extractor {
	return &Extractor{maxSize: maxSize}
}

// rawMember はXMLのMember要素のデコード先。
// 全フィールドを文字列として受け取り、型変換は抽出後に行う。
type rawMember struct {
	LastName   string `xml:"LastName"`
	FirstName  string `xml:"FirstName"`
	MiddleName string `xml:"MiddleName"`
	BirthDate  string `xml:"BirthDate"`
	Relation   string `xml:"Relation"`
	Applicant  string `xml:"Applicant"`
}

// Extract は指定パスのXMLファイルから構成員レコードを抽出する。
// 以下の場合にエラーを返す:
//   - ファイルが存在しない、または読み取れない場合（入力エラー）
//   - ファイルサイズが上限を超える場合（入力エラー、上限ちょうどは許容）
//   - XMLが整形式でない場合（パーサーの行番号付き診断を含むエラー）
//   - Member要素が1つも存在しない場合（スキーマエラー）
//
// 各フィールド値は前後の空白を除去して返す。文書内の出現順を保持する。
func (e *Extractor) Extract(path string) ([]model.ParsedMember, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, model.NewInputError(fmt.Sprintf("入力ファイルを読み取れません: %s", path))
	}
	if info.Size() > e.maxSize {
		return nil, model.NewInputError(fmt.Sprintf(
			"入力ファイルのサイズが上限を超えています: %dバイト（上限: %dバイト）", info.Size(), e.maxSize))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewInputError(fmt.Sprintf("入力ファイルを開けません: %s", path))
	}
	defer f.Close()

	return e.decode(f)
}

// decode はXMLストリームをデコードして構成員レコードを返す。
func (e *Extractor) decode(r io.Reader) ([]model.ParsedMember, error) {
	decoder := xml.NewDecoder(r)
	// 宣言されたエンコーディング（windows-1251等）をUTF-8へ変換して読む。
	decoder.CharsetReader = charset.NewReaderLabel

	var members []model.ParsedMember
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformedError(err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "Member" {
			continue
		}

		var raw rawMember
		if err := decoder.DecodeElement(&raw, &start); err != nil {
			return nil, malformedError(err)
		}
		members = append(members, model.ParsedMember{
			LastName:    strings.TrimSpace(raw.LastName),
			FirstName:   strings.TrimSpace(raw.FirstName),
			MiddleName:  strings.TrimSpace(raw.MiddleName),
			BirthDate:   strings.TrimSpace(raw.BirthDate),
			Relation:    strings.TrimSpace(raw.Relation),
			IsApplicant: parseApplicant(raw.Applicant),
		})
	}

	if len(members) == 0 {
		return nil, model.NewSchemaError()
	}

	return members, nil
}

// malformedError はXMLデコードエラーを行番号付きの診断エラーへ変換する。
func malformedError(err error) error {
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		return model.NewMalformedXMLError([]model.XMLDiagnostic{
			{Line: syntaxErr.Line, Message: syntaxErr.Msg},
		})
	}
	return model.NewMalformedXMLError([]model.XMLDiagnostic{
		{Line: 0, Message: err.Error()},
	})
}

// parseApplicant は申請者フラグのテキスト値を解釈する。
// "true"（大文字小文字不問）のみを真とみなし、欠損を含むそれ以外は偽とする。
func parseApplicant(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
