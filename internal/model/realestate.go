// Package model はドメインモデルを定義する。
package model

import "time"

// RealEstateObject は構成員が保有する不動産を表す。
// Persistence層のバッチ挿入でのみ作成され、以後は不変。
// タスクの再処理時は構成員単位で削除してから再挿入される。
type RealEstateObject struct {
	ID        int64
	MemberID  int64
	Type      string
	Address   string
	Ownership string
	CreatedAt time.Time
}

// LookupObject は外部不動産照会サービスが返す1件の不動産情報を表す。
type LookupObject struct {
	Type      string `json:"type"`
	Address   string `json:"address"`
	Ownership string `json:"ownership"`
}

// LookupResult は外部不動産照会サービスのレスポンスを表す。
// 照会失敗時はEnrichment GatewayがHasRealEstate=false、Objects空の値を返す。
type LookupResult struct {
	HasRealEstate bool           `json:"hasRealEstate"`
	Objects       []LookupObject `json:"objects"`
}
