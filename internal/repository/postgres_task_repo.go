package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NodirbekRare/famestate/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。ステータスはpendingとなる。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO family_tasks (id, status, input_file, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())`,
		task.ID, string(model.TaskStatusPending), task.InputFile,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task := &model.Task{}
	var resultFile, errorMessage sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, input_file, result_file, error_message, created_at, updated_at
		 FROM family_tasks WHERE id = $1`,
		id,
	).Scan(
		&task.ID, &task.Status, &task.InputFile,
		&resultFile, &errorMessage, &task.CreatedAt, &task.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}

	task.ResultFile = nullStringValue(resultFile)
	task.ErrorMessage = nullStringValue(errorMessage)

	return task, nil
}

// ListPending はpendingステータスのタスクを作成日時の昇順で取得する。
// FOR UPDATE SKIP LOCKEDにより、同時に重なったポーリング同士が
// 同じ行を返すことを避ける。行ロックは文の終了とともに解放されるため、
// ポーリング間隔をまたいだ二重取得までは防げない。その競合は
// SaveGraphの直列化トランザクションとUPSERTの冪等性で吸収される。
func (r *PostgresTaskRepo) ListPending(ctx context.Context, limit int) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, status, input_file, result_file, error_message, created_at, updated_at
		 FROM family_tasks
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		string(model.TaskStatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未処理タスクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkProcessing はタスクをprocessingステータスへ遷移させる。
// failedからの再実行で前回のエラーメッセージや結果ファイル参照が
// 残らないよう、両カラムをNULLへ戻す。
func (r *PostgresTaskRepo) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE family_tasks
		 SET status = $2, error_message = NULL, result_file = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id, string(model.TaskStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("タスクステータスの更新に失敗しました: %w", err)
	}
	return nil
}

// MarkDone はタスクをdoneステータスへ遷移させ、結果ファイルパスを記録する。
func (r *PostgresTaskRepo) MarkDone(ctx context.Context, id, resultFile string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE family_tasks
		 SET status = $2, result_file = $3, error_message = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id, string(model.TaskStatusDone), resultFile,
	)
	if err != nil {
		return fmt.Errorf("タスクの完了記録に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed はタスクをfailedステータスへ遷移させ、エラーメッセージを記録する。
// 結果ファイル参照はdoneの場合のみ保持されるため、NULLへ戻す。
func (r *PostgresTaskRepo) MarkFailed(ctx context.Context, id, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE family_tasks
		 SET status = $2, error_message = $3, result_file = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id, string(model.TaskStatusFailed), errorMessage,
	)
	if err != nil {
		return fmt.Errorf("タスクの失敗記録に失敗しました: %w", err)
	}
	return nil
}

// ListExpired は指定日時より前に作成された終端状態のタスクを取得する。
func (r *PostgresTaskRepo) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, status, input_file, result_file, error_message, created_at, updated_at
		 FROM family_tasks
		 WHERE status IN ($1, $2) AND created_at < $3
		 ORDER BY created_at
		 LIMIT $4`,
		string(model.TaskStatusDone), string(model.TaskStatusFailed), before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("期限切れタスクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// DeleteByID は指定IDのタスクを削除する。
// 関連するfamily_members、real_estateはCASCADE削除される。
func (r *PostgresTaskRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM family_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

// scanTasks は複数行の結果をタスク一覧へ変換する。
func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		var resultFile, errorMessage sql.NullString
		if err := rows.Scan(
			&task.ID, &task.Status, &task.InputFile,
			&resultFile, &errorMessage, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("タスク行の読み取りに失敗しました: %w", err)
		}
		task.ResultFile = nullStringValue(resultFile)
		task.ErrorMessage = nullStringValue(errorMessage)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の読み取りに失敗しました: %w", err)
	}
	return tasks, nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はNULL許容文字列を通常の文字列に変換する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var _ TaskRepository = (*PostgresTaskRepo)(nil)
