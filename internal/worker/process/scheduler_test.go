package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/NodirbekRare/famestate/internal/model"
)

// mockTaskRepo はTaskRepositoryのテスト用モック。
type mockTaskRepo struct {
	pending    []*model.Task
	pendingErr error
	limit      int
}

func (m *mockTaskRepo) Create(ctx context.Context, task *model.Task) error { return nil }

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return nil, nil
}

func (m *mockTaskRepo) ListPending(ctx context.Context, limit int) ([]*model.Task, error) {
	m.limit = limit
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *mockTaskRepo) MarkProcessing(ctx context.Context, id string) error { return nil }

func (m *mockTaskRepo) MarkDone(ctx context.Context, id, resultFile string) error { return nil }

func (m *mockTaskRepo) MarkFailed(ctx context.Context, id, errorMessage string) error { return nil }

func (m *mockTaskRepo) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Task, error) {
	return nil, nil
}

func (m *mockTaskRepo) DeleteByID(ctx context.Context, id string) error { return nil }

// mockProcessor はTaskProcessorのテスト用モック。
type mockProcessor struct {
	mu         sync.Mutex
	processed  []string
	inFlight   int
	maxInFlight int
	err        error
	delay      time.Duration
}

func (m *mockProcessor) Process(ctx context.Context, taskID string) error {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.inFlight--
	m.processed = append(m.processed, taskID)
	m.mu.Unlock()

	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func pendingTasks(n int) []*model.Task {
	tasks := make([]*model.Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, &model.Task{
			ID:     string(rune('a' + i)),
			Status: model.TaskStatusPending,
		})
	}
	return tasks
}

// TestRunOnce_ProcessesAllTasks は取得した全タスクの処理を検証する。
func TestRunOnce_ProcessesAllTasks(t *testing.T) {
	repo := &mockTaskRepo{pending: pendingTasks(5)}
	processor := &mockProcessor{}
	scheduler := NewScheduler(repo, processor, discardLogger(), 4, 20)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(processor.processed) != 5 {
		t.Errorf("processed %d tasks, want 5", len(processor.processed))
	}
	if repo.limit != 20 {
		t.Errorf("claim limit = %d, want 20", repo.limit)
	}
}

// TestRunOnce_EmptyQueue は未処理タスクがない場合の挙動を検証する。
func TestRunOnce_EmptyQueue(t *testing.T) {
	repo := &mockTaskRepo{}
	processor := &mockProcessor{}
	scheduler := NewScheduler(repo, processor, discardLogger(), 4, 20)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(processor.processed) != 0 {
		t.Errorf("processed %d tasks, want 0", len(processor.processed))
	}
}

// TestRunOnce_ListError はタスク取得失敗時のエラー伝播を検証する。
func TestRunOnce_ListError(t *testing.T) {
	repo := &mockTaskRepo{pendingErr: errors.New("connection refused")}
	processor := &mockProcessor{}
	scheduler := NewScheduler(repo, processor, discardLogger(), 4, 20)

	if err := scheduler.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() should return the list error")
	}
}

// TestRunOnce_ProcessErrorDoesNotAbort は個別タスクの処理失敗が
// 他タスクへ影響しないことを検証する。
func TestRunOnce_ProcessErrorDoesNotAbort(t *testing.T) {
	repo := &mockTaskRepo{pending: pendingTasks(3)}
	processor := &mockProcessor{err: errors.New("processing failed")}
	scheduler := NewScheduler(repo, processor, discardLogger(), 4, 20)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(processor.processed) != 3 {
		t.Errorf("processed %d tasks, want 3", len(processor.processed))
	}
}

// TestRunOnce_ConcurrencyLimit は並列数の上限制御を検証する。
func TestRunOnce_ConcurrencyLimit(t *testing.T) {
	repo := &mockTaskRepo{pending: pendingTasks(10)}
	processor := &mockProcessor{delay: 20 * time.Millisecond}
	scheduler := NewScheduler(repo, processor, discardLogger(), 2, 20)

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if processor.maxInFlight > 2 {
		t.Errorf("max concurrent processes = %d, want <= 2", processor.maxInFlight)
	}
	if len(processor.processed) != 10 {
		t.Errorf("processed %d tasks, want 10", len(processor.processed))
	}
}

// TestNewScheduler_Defaults はデフォルト値の適用を検証する。
func TestNewScheduler_Defaults(t *testing.T) {
	scheduler := NewScheduler(&mockTaskRepo{}, &mockProcessor{}, discardLogger(), 0, -1)

	if scheduler.maxConcurrency != 4 {
		t.Errorf("maxConcurrency = %d, want 4", scheduler.maxConcurrency)
	}
	if scheduler.claimLimit != 20 {
		t.Errorf("claimLimit = %d, want 20", scheduler.claimLimit)
	}
}
