// Package compose は処理結果の正規XMLドキュメントを作成する機能を提供する。
package compose

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/NodirbekRare/famestate/internal/model"
)

// pageSize は結果XML作成時に1回のクエリで読み込む構成員数。
// 構成員数の多いタスクでも全件をメモリに載せずに書き出せる。
const pageSize = 50

// notSpecified は不動産情報の欠損フィールドに出力するプレースホルダ。
// 下流システムが期待する固定文字列のため翻訳しない。
const notSpecified = "Не указан"

// MemberPager は構成員の挿入順ページ読み取りインターフェース。
// repository.PostgresMemberRepoが実装を提供する。
type MemberPager interface {
	ListByTaskPage(ctx context.Context, taskID string, offset, limit int) ([]*model.Member, error)
}

// RealEstateLister は構成員単位の不動産読み取りインターフェース。
type RealEstateLister interface {
	ListByMemberIDs(ctx context.Context, memberIDs []int64) (map[int64][]*model.RealEstateObject, error)
}

// Composer は保存済みの家族グラフから結果XMLを作成する。
type Composer struct {
	members    MemberPager
	realEstate RealEstateLister
	resultDir  string
	now        func() time.Time
}

// NewComposer はComposerの新しいインスタンスを生成する。
// resultDirは結果XMLの出力先ディレクトリを指定する。
func NewComposer(members MemberPager, realEstate RealEstateLister, resultDir string) *Composer {
	return &Composer{
		members:    members,
		realEstate: realEstate,
		resultDir:  resultDir,
		now:        time.Now,
	}
}

// xmlObject は結果XMLの不動産オブジェクト要素。
type xmlObject struct {
	Type      string `xml:"Type"`
	Address   string `xml:"Address"`
	Ownership string `xml:"Ownership"`
}

// xmlRealEstate は結果XMLの不動産情報要素。
type xmlRealEstate struct {
	HasRealEstate bool        `xml:"HasRealEstate"`
	Objects       []xmlObject `xml:"Objects>Object"`
}

// xmlMember は結果XMLの構成員要素。
type xmlMember struct {
	XMLName    xml.Name      `xml:"Member"`
	FIO        string        `xml:"FIO"`
	BirthDate  string        `xml:"BirthDate"`
	Relation   string        `xml:"Relation"`
	RealEstate xmlRealEstate `xml:"RealEstate"`
	Status     string        `xml:"Status"`
}

// Compose は指定タスクの結果XMLを作成し、出力ファイルのパスを返す。
// 構成員は挿入順に50件単位で読み込み、各構成員のFIO、生年月日、続柄、
// 不動産情報を出力する。不動産の欠損フィールドにはプレースホルダを埋める。
// 出力ファイル名は task_<タスクID>_<タイムスタンプ>.xml となる。
func (c *Composer) Compose(ctx context.Context, taskID string) (string, error) {
	if err := os.MkdirAll(c.resultDir, 0o755); err != nil {
		return "", model.NewOutputError("結果ディレクトリの作成に失敗しました", err)
	}

	path, f, err := c.createResultFile(taskID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := c.writeDocument(ctx, f, taskID); err != nil {
		// 中途半端な結果ファイルを残さない。
		os.Remove(path)
		return "", err
	}

	return path, nil
}

// createResultFile は衝突しない結果ファイルを作成する。
// 同名ファイルが既に存在する場合はUUIDサフィックスで回避する。
func (c *Composer) createResultFile(taskID string) (string, *os.File, error) {
	name := fmt.Sprintf("task_%s_%s.xml", taskID, c.now().Format("20060102_150405"))
	path := filepath.Join(c.resultDir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		name = fmt.Sprintf("task_%s_%s_%s.xml",
			taskID, c.now().Format("20060102_150405"), uuid.NewString())
		path = filepath.Join(c.resultDir, name)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", nil, model.NewOutputError("結果ファイルの作成に失敗しました", err)
	}

	return path, f, nil
}

// writeDocument は結果XMLのドキュメント全体を書き出す。
func (c *Composer) writeDocument(ctx context.Context, f *os.File, taskID string) error {
	if _, err := f.WriteString(xml.Header); err != nil {
		return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
	}

	encoder := xml.NewEncoder(f)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "FamilyRealEstateResult"}}
	if err := encoder.EncodeToken(root); err != nil {
		return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
	}

	for offset := 0; ; {
		page, err := c.members.ListByTaskPage(ctx, taskID, offset, pageSize)
		if err != nil {
			return model.NewOutputError("結果XML作成時の構成員読み取りに失敗しました", err)
		}
		if len(page) == 0 {
			break
		}

		memberIDs := make([]int64, 0, len(page))
		for _, m := range page {
			memberIDs = append(memberIDs, m.ID)
		}
		estateByMember, err := c.realEstate.ListByMemberIDs(ctx, memberIDs)
		if err != nil {
			return model.NewOutputError("結果XML作成時の不動産読み取りに失敗しました", err)
		}

		for _, m := range page {
			if err := encoder.Encode(buildXMLMember(m, estateByMember[m.ID])); err != nil {
				return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
			}
		}

		offset += len(page)
	}

	if err := encoder.EncodeToken(root.End()); err != nil {
		return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
	}
	if err := encoder.Flush(); err != nil {
		return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
	}
	if err := f.Sync(); err != nil {
		return model.NewOutputError("結果XMLの書き込みに失敗しました", err)
	}

	return nil
}

// buildXMLMember は保存済み構成員と不動産一覧を結果XMLの要素へ変換する。
func buildXMLMember(m *model.Member, objects []*model.RealEstateObject) xmlMember {
	member := xmlMember{
		FIO:       m.FullName(),
		BirthDate: m.BirthDate,
		Relation:  m.Relation,
		RealEstate: xmlRealEstate{
			HasRealEstate: len(objects) > 0,
		},
		Status: "OK",
	}

	for _, obj := range objects {
		member.RealEstate.Objects = append(member.RealEstate.Objects, xmlObject{
			Type:      orPlaceholder(obj.Type),
			Address:   orPlaceholder(obj.Address),
			Ownership: orPlaceholder(obj.Ownership),
		})
	}

	return member
}

// orPlaceholder は空のフィールド値をプレースホルダへ置き換える。
func orPlaceholder(v string) string {
	if v == "" {
		return notSpecified
	}
	return v
}
