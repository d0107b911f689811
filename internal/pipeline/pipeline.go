// Package pipeline は家族XML処理パイプラインの編成を提供する。
//
// 抽出、検証、永続化、結果XML作成の各段を順に実行し、
// 結果をタスクの状態遷移へ写像する。各段はエラー値を返すだけであり、
// failedステータスへの遷移を判断するのは本パッケージのみである。
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/NodirbekRare/famestate/internal/metrics"
	"github.com/NodirbekRare/famestate/internal/model"
	"github.com/NodirbekRare/famestate/internal/repository"
)

// TaskStore はパイプラインが必要とするタスク操作のインターフェース。
type TaskStore interface {
	FindByID(ctx context.Context, id string) (*model.Task, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, resultFile string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
}

// Extractor は入力XMLから構成員レコードを抽出する。
type Extractor interface {
	Extract(path string) ([]model.ParsedMember, error)
}

// Validator は構成員レコードを検証し、サニタイズ済みの一覧を返す。
type Validator interface {
	Validate(members []model.ParsedMember) ([]model.ParsedMember, error)
}

// Composer は保存済みの家族グラフから結果XMLを作成する。
type Composer interface {
	Compose(ctx context.Context, taskID string) (string, error)
}

// Pipeline は1タスク分の処理パイプラインを実行する。
type Pipeline struct {
	tasks     TaskStore
	extractor Extractor
	validator Validator
	graph     repository.FamilyGraphRepository
	enricher  repository.MemberEnricher
	composer  Composer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// New はPipelineの新しいインスタンスを生成する。
func New(
	tasks TaskStore,
	extractor Extractor,
	validator Validator,
	graph repository.FamilyGraphRepository,
	enricher repository.MemberEnricher,
	composer Composer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		tasks:     tasks,
		extractor: extractor,
		validator: validator,
		graph:     graph,
		enricher:  enricher,
		composer:  composer,
		metrics:   collector,
		logger:    logger,
	}
}

// Process は指定タスクのパイプラインを実行する。
// タスクが存在しない場合は警告ログを残してスキップする。
// 既にdoneのタスクは再実行しない。failedのタスクは再実行できる
// （UPSERTと不動産置き換えにより再実行は冪等となる）。
//
// パイプラインのエラーはタスクのfailed遷移として記録され、
// 呼び出し元へは返さない。戻り値のエラーはタスクの取得や
// 状態遷移そのものが失敗した場合に限られる。
func (p *Pipeline) Process(ctx context.Context, taskID string) error {
	task, err := p.tasks.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		p.logger.Warn("タスクが存在しないためスキップします", slog.String("task_id", taskID))
		return nil
	}
	if task.Status == model.TaskStatusDone {
		p.logger.Info("タスクは既に完了しているためスキップします", slog.String("task_id", taskID))
		return nil
	}

	if err := p.tasks.MarkProcessing(ctx, taskID); err != nil {
		return err
	}

	start := time.Now()
	resultFile, runErr := p.run(ctx, task)
	if runErr != nil {
		kind := model.ErrorKindOf(runErr)
		p.logger.Error("タスクの処理に失敗しました",
			slog.String("task_id", taskID),
			slog.String("kind", string(kind)),
			slog.String("error", runErr.Error()),
		)
		p.metrics.RecordTaskFailed(string(kind))
		return p.tasks.MarkFailed(ctx, taskID, runErr.Error())
	}

	if err := p.tasks.MarkDone(ctx, taskID, resultFile); err != nil {
		return err
	}

	elapsed := time.Since(start)
	p.metrics.RecordTaskDone()
	p.metrics.RecordProcessingLatency(elapsed)
	p.logger.Info("タスクの処理が完了しました",
		slog.String("task_id", taskID),
		slog.String("result_file", resultFile),
		slog.Duration("elapsed", elapsed),
	)

	return nil
}

// run はパイプラインの各段を順に実行し、結果XMLのパスを返す。
func (p *Pipeline) run(ctx context.Context, task *model.Task) (string, error) {
	parsed, err := p.extractor.Extract(task.InputFile)
	if err != nil {
		return "", err
	}

	validated, err := p.validator.Validate(parsed)
	if err != nil {
		return "", err
	}

	graphResult, err := p.graph.SaveGraph(ctx, task.ID, validated, p.enricher)
	if err != nil {
		return "", err
	}
	p.metrics.RecordMembersUpserted(len(graphResult.Members))
	p.metrics.RecordRealEstateRows(graphResult.RealEstateRows)
	p.logger.Info("家族グラフを保存しました",
		slog.String("task_id", task.ID),
		slog.Int("inserted", graphResult.Inserted),
		slog.Int("updated", graphResult.Updated),
		slog.Int("real_estate_rows", graphResult.RealEstateRows),
	)

	return p.composer.Compose(ctx, task.ID)
}
