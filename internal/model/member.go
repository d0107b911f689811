// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Member は1つのタスクに属する家族構成員を表す。
// (LastName, FirstName, MiddleName, BirthDate) の組がタスク内の自然キーとなり、
// UPSERTの同一性判定に使用される。
type Member struct {
	ID          int64
	TaskID      string
	LastName    string
	FirstName   string
	MiddleName  string
	BirthDate   string // YYYY-MM-DD形式の暦日（時刻なし）
	Relation    string
	IsApplicant bool
	CreatedAt   time.Time
}

// FullName は姓・名・父称を単一スペースで連結したFIO表記を返す。
// 父称が空の場合は姓と名のみを連結する。
func (m *Member) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{m.LastName, m.FirstName, m.MiddleName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ParsedMember はXMLから抽出した未保存の構成員レコードを表す。
// Extractorが生成し、Validatorによる検証とサニタイズを経てPersistence層に渡される。
type ParsedMember struct {
	LastName    string
	FirstName   string
	MiddleName  string
	BirthDate   string
	Relation    string
	IsApplicant bool
}
