// Package process は未処理タスクのバックグラウンド処理を提供する。
package process

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NodirbekRare/famestate/internal/model"
	"github.com/NodirbekRare/famestate/internal/repository"
)

// TaskProcessor はタスク処理の実行インターフェース。
// pipeline.Pipelineが実装を提供する。
type TaskProcessor interface {
	// Process は指定タスクの処理パイプラインを実行する。
	Process(ctx context.Context, taskID string) error
}

// Scheduler は未処理タスクのスケジューリングと並列制御を行う。
// 一定間隔のティッカーで未処理タスクを取得し、
// semaphoreパターンで最大並列数を制御しながら処理を実行する。
type Scheduler struct {
	taskRepo       repository.TaskRepository
	processor      TaskProcessor
	logger         *slog.Logger
	maxConcurrency int
	claimLimit     int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
// claimLimitが0以下の場合はデフォルト値20を使用する。
func NewScheduler(
	taskRepo repository.TaskRepository,
	processor TaskProcessor,
	logger *slog.Logger,
	maxConcurrency int,
	claimLimit int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if claimLimit <= 0 {
		claimLimit = 20
	}
	return &Scheduler{
		taskRepo:       taskRepo,
		processor:      processor,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		claimLimit:     claimLimit,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("処理スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("処理サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("処理スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("処理サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は未処理タスクを1回取得し、並列で処理を実行する。
// 取得はSKIP LOCKED付きで行われるため、ポーリングが重なった瞬間の
// 二重取得は避けられる。稀に別ワーカーと同一タスクを処理した場合は、
// 永続化層の直列化トランザクションが競合を検出する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	tasks, err := s.taskRepo.ListPending(ctx, s.claimLimit)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		return nil
	}

	s.logger.Info("処理サイクルを開始します",
		slog.Int("task_count", len(tasks)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}

		go func(t *model.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.processor.Process(ctx, t.ID); err != nil {
				s.logger.Error("タスク処理に失敗しました",
					slog.String("task_id", t.ID),
					slog.String("error", err.Error()),
				)
			}
		}(task)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("処理サイクルが完了しました",
		slog.Int("task_count", len(tasks)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
