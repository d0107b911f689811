// Package model はドメインモデルを定義する。
package model

import "time"

// TaskStatus は処理タスクのライフサイクル状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未処理の状態。タスク作成時の初期状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProcessing はパイプライン実行中の状態。
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusDone は処理成功の終端状態。result_fileが設定される。
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed は処理失敗の終端状態。error_messageが設定される。
	TaskStatusFailed TaskStatus = "failed"
)

// Task は家族XMLの処理タスクを表す。
// 不変条件: ResultFileはstatus=doneの場合のみ、
// ErrorMessageはstatus=failedの場合のみ設定される。
type Task struct {
	ID           string
	Status       TaskStatus
	InputFile    string
	ResultFile   string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
