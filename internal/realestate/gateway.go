package realestate

import (
	"context"
	"log/slog"

	"github.com/NodirbekRare/famestate/internal/model"
)

// LookupClient は不動産照会APIの呼び出しインターフェース。
// Clientが実装を提供する。
type LookupClient interface {
	Lookup(ctx context.Context, member *model.Member) (*model.LookupResult, error)
}

// FieldSanitizer は外部サービスから取得したテキストを正規化する。
type FieldSanitizer interface {
	Sanitize(raw string) string
}

// FailureRecorder は照会失敗の計数インターフェース。
type FailureRecorder interface {
	RecordEnrichmentFailure()
}

// Gateway は照会APIの失敗をタスク失敗へ波及させない境界。
// 照会に失敗した構成員は「不動産なし」として扱い、処理を継続させる。
// 外部サービスから取得したフィールドは信頼せず、保存前にサニタイズする。
type Gateway struct {
	client    LookupClient
	sanitizer FieldSanitizer
	metrics   FailureRecorder
	logger    *slog.Logger
}

// NewGateway はGatewayの新しいインスタンスを生成する。
func NewGateway(client LookupClient, sanitizer FieldSanitizer, metrics FailureRecorder, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:    client,
		sanitizer: sanitizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Enrich は指定構成員の保有不動産を照会して返す。
// 照会失敗時は警告ログと失敗メトリクスを記録し、空の結果を返す。
// エラーを返さないため、呼び出し元のトランザクションを中断させることはない。
func (g *Gateway) Enrich(ctx context.Context, member *model.Member) []model.LookupObject {
	result, err := g.client.Lookup(ctx, member)
	if err != nil {
		g.logger.Warn("不動産照会に失敗したため不動産なしとして処理を継続します",
			slog.Int64("member_id", member.ID),
			slog.String("error", err.Error()),
		)
		g.metrics.RecordEnrichmentFailure()
		return nil
	}

	if !result.HasRealEstate || len(result.Objects) == 0 {
		return nil
	}

	objects := make([]model.LookupObject, 0, len(result.Objects))
	for _, obj := range result.Objects {
		objects = append(objects, model.LookupObject{
			Type:      g.sanitizer.Sanitize(obj.Type),
			Address:   g.sanitizer.Sanitize(obj.Address),
			Ownership: g.sanitizer.Sanitize(obj.Ownership),
		})
	}
	return objects
}
