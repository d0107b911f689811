// Package cleanup は完了済みタスクの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した終端状態のタスクと、
// その入力ファイル・結果ファイルを日次バッチで削除する。
// family_membersとreal_estateはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/NodirbekRare/famestate/internal/repository"
)

// claimLimit は1回の実行で削除するタスクの上限数。
const claimLimit = 500

// CleanupJob は保持期間を超過したタスクの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	taskRepo      repository.TaskRepository
	logger        *slog.Logger
	RetentionDays int // タスクの保持日数（デフォルト: 30）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(taskRepo repository.TaskRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		taskRepo:      taskRepo,
		logger:        logger,
		RetentionDays: 30,
		now:           time.Now,
	}
}

// Run は保持期間を超過した終端状態（done/failed）のタスクを削除する。
// タスク行の削除前に入力ファイルと結果ファイルを削除する。
// ファイルが既に存在しない場合は無視する（冪等）。
// 1回の実行で削除するタスクは上限件数までとし、残りは次回実行に持ち越す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now().AddDate(0, 0, -j.RetentionDays)

	tasks, err := j.taskRepo.ListExpired(ctx, before, claimLimit)
	if err != nil {
		j.logger.Error("クリーンアップ対象タスクの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	deleted := 0
	for _, task := range tasks {
		j.removeFile(task.InputFile)
		j.removeFile(task.ResultFile)

		if err := j.taskRepo.DeleteByID(ctx, task.ID); err != nil {
			j.logger.Error("タスクの削除に失敗しました",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			return err
		}
		deleted++
	}

	duration := time.Since(start)
	j.logger.Info("タスククリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// removeFile は指定パスのファイルを削除する。パスが空または
// ファイルが存在しない場合は何もしない。
func (j *CleanupJob) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		j.logger.Warn("ファイルの削除に失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
