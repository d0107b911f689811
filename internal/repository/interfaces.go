// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/NodirbekRare/famestate/internal/model"
)

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// Create はタスクを作成する。ステータスはpendingとなる。
	Create(ctx context.Context, task *model.Task) error

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListPending はpendingステータスのタスクを作成日時の昇順で取得する。
	// 同時に重なったポーリング同士が同じ行を返すことは避けるが、
	// ポーリング間隔をまたいだ二重取得は起こりうる。
	ListPending(ctx context.Context, limit int) ([]*model.Task, error)

	// MarkProcessing はタスクをprocessingステータスへ遷移させる。
	MarkProcessing(ctx context.Context, id string) error

	// MarkDone はタスクをdoneステータスへ遷移させ、結果ファイルパスを記録する。
	MarkDone(ctx context.Context, id, resultFile string) error

	// MarkFailed はタスクをfailedステータスへ遷移させ、エラーメッセージを記録する。
	MarkFailed(ctx context.Context, id, errorMessage string) error

	// ListExpired は指定日時より前に作成された終端状態（done/failed）の
	// タスクを取得する。クリーンアップジョブが使用する。
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Task, error)

	// DeleteByID は指定IDのタスクを削除する。
	// 関連するfamily_members、real_estateはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// MemberRepository は家族構成員データの読み取りインターフェース。
// 書き込みはFamilyGraphRepositoryのトランザクション内でのみ行う。
type MemberRepository interface {
	// FindByID は指定IDの構成員を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Member, error)

	// ListByTaskPage は指定タスクの構成員を挿入順（ID昇順）で
	// offsetからlimit件取得する。
	ListByTaskPage(ctx context.Context, taskID string, offset, limit int) ([]*model.Member, error)
}

// RealEstateRepository は不動産データの読み取りインターフェース。
type RealEstateRepository interface {
	// ListByMemberID は指定構成員の不動産オブジェクトをID昇順で取得する。
	ListByMemberID(ctx context.Context, memberID int64) ([]*model.RealEstateObject, error)

	// ListByMemberIDs は複数構成員の不動産オブジェクトをまとめて取得し、
	// 構成員IDをキーとしたマップで返す。結果XML作成時のページ単位取得に使用する。
	ListByMemberIDs(ctx context.Context, memberIDs []int64) (map[int64][]*model.RealEstateObject, error)
}

// MemberEnricher は保存済み構成員の不動産情報を外部サービスへ照会する。
// realestate.Gatewayが実装を提供する。照会失敗は内部で回復されるため、
// 実装はエラーを返さず、失敗時は空の結果を返す。
type MemberEnricher interface {
	Enrich(ctx context.Context, member *model.Member) []model.LookupObject
}

// GraphResult は家族グラフ保存の集計結果を表す。
type GraphResult struct {
	Members        []*model.Member
	Inserted       int
	Updated        int
	RealEstateRows int
}

// FamilyGraphRepository は検証済み構成員一覧の永続化と
// 不動産情報の付加を単一トランザクションで行う。
type FamilyGraphRepository interface {
	// SaveGraph は構成員一覧をUPSERTし、各構成員の不動産情報を
	// 照会して置き換える。全操作はSERIALIZABLE分離レベルの
	// 単一トランザクション内で行われ、失敗時は全体がロールバックされる。
	SaveGraph(ctx context.Context, taskID string, members []model.ParsedMember, enricher MemberEnricher) (*GraphResult, error)
}
