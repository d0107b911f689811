package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NodirbekRare/famestate/internal/model"
)

// --- モック定義 ---

type mockTaskStore struct {
	createFunc   func(ctx context.Context, task *model.Task) error
	findByIDFunc func(ctx context.Context, id string) (*model.Task, error)
	created      *model.Task
}

func (m *mockTaskStore) Create(ctx context.Context, task *model.Task) error {
	m.created = task
	if m.createFunc != nil {
		return m.createFunc(ctx, task)
	}
	return nil
}

func (m *mockTaskStore) FindByID(ctx context.Context, id string) (*model.Task, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

type mockMemberReader struct {
	findByIDFunc func(ctx context.Context, id int64) (*model.Member, error)
}

func (m *mockMemberReader) FindByID(ctx context.Context, id int64) (*model.Member, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

type mockRealEstateReader struct {
	listFunc func(ctx context.Context, memberID int64) ([]*model.RealEstateObject, error)
}

func (m *mockRealEstateReader) ListByMemberID(ctx context.Context, memberID int64) ([]*model.RealEstateObject, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, memberID)
	}
	return nil, nil
}

type mockProcessor struct {
	called chan string
}

func (m *mockProcessor) Process(ctx context.Context, taskID string) error {
	if m.called != nil {
		m.called <- taskID
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type handlerDeps struct {
	tasks      *mockTaskStore
	members    *mockMemberReader
	realEstate *mockRealEstateReader
	processor  *mockProcessor
}

func newTestHandler(t *testing.T, deps *handlerDeps) *FamilyHandler {
	t.Helper()
	return NewFamilyHandler(
		deps.tasks, deps.members, deps.realEstate, deps.processor,
		discardLogger(), t.TempDir(), 1024,
	)
}

// withURLParam はchiのルートパラメータを付与したリクエストを返す。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartBody はfileフィールドにXMLを載せたmultipartボディを作る。
func multipartBody(t *testing.T, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "family.xml")
	if err != nil {
		t.Fatalf("multipartの作成に失敗: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("multipartの書き込みに失敗: %v", err)
	}
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func decodeEnvelope(t *testing.T, body io.Reader) apiResponse {
	t.Helper()
	var envelope apiResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	return envelope
}

// --- Upload ---

func TestUpload_Success(t *testing.T) {
	deps := &handlerDeps{tasks: &mockTaskStore{}}
	h := newTestHandler(t, deps)

	body, contentType := multipartBody(t, "<FamilyData><Member/></FamilyData>")
	req := httptest.NewRequest(http.MethodPost, "/api/family/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if deps.tasks.created == nil {
		t.Fatal("task should be created")
	}
	if deps.tasks.created.InputFile == "" {
		t.Error("created task should reference the saved file")
	}
	data, err := os.ReadFile(deps.tasks.created.InputFile)
	if err != nil {
		t.Fatalf("saved file should exist: %v", err)
	}
	if string(data) != "<FamilyData><Member/></FamilyData>" {
		t.Errorf("saved file content = %q", string(data))
	}
	if filepath.Ext(deps.tasks.created.InputFile) != ".xml" {
		t.Errorf("saved file should have .xml extension: %s", deps.tasks.created.InputFile)
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{tasks: &mockTaskStore{}})

	req := httptest.NewRequest(http.MethodPost, "/api/family/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{tasks: &mockTaskStore{}})

	body, contentType := multipartBody(t, strings.Repeat("x", 2048))
	req := httptest.NewRequest(http.MethodPost, "/api/family/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

// --- Process ---

func TestProcess_StartsPipeline(t *testing.T) {
	processor := &mockProcessor{called: make(chan string, 1)}
	deps := &handlerDeps{
		tasks: &mockTaskStore{
			findByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
				return &model.Task{ID: id, Status: model.TaskStatusPending}, nil
			},
		},
		processor: processor,
	}
	h := newTestHandler(t, deps)

	req := httptest.NewRequest(http.MethodPost, "/api/family/process",
		strings.NewReader(`{"task_id":"t1"}`))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	select {
	case taskID := <-processor.called:
		if taskID != "t1" {
			t.Errorf("processed task = %q, want t1", taskID)
		}
	case <-time.After(time.Second):
		t.Fatal("processor should be invoked")
	}
}

func TestProcess_TaskNotFound(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{tasks: &mockTaskStore{}})

	req := httptest.NewRequest(http.MethodPost, "/api/family/process",
		strings.NewReader(`{"task_id":"unknown"}`))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestProcess_AlreadyProcessing(t *testing.T) {
	deps := &handlerDeps{
		tasks: &mockTaskStore{
			findByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
				return &model.Task{ID: id, Status: model.TaskStatusProcessing}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := httptest.NewRequest(http.MethodPost, "/api/family/process",
		strings.NewReader(`{"task_id":"t1"}`))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestProcess_InvalidBody(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{tasks: &mockTaskStore{}})

	tests := []struct {
		name string
		body string
	}{
		{name: "壊れたJSON", body: `{`},
		{name: "task_idなし", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/family/process",
				strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Process(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

// --- GetResult ---

func TestGetResult_Done(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "task_t1_20260830_150405.xml")
	const resultXML = `<?xml version="1.0" encoding="UTF-8"?><FamilyRealEstateResult></FamilyRealEstateResult>`
	if err := os.WriteFile(resultPath, []byte(resultXML), 0o644); err != nil {
		t.Fatalf("結果ファイルの作成に失敗: %v", err)
	}

	deps := &handlerDeps{
		tasks: &mockTaskStore{
			findByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
				return &model.Task{ID: id, Status: model.TaskStatusDone, ResultFile: resultPath}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/t1/result", nil), "taskID", "t1")
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "task_t1_20260830_150405.xml") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != resultXML {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestGetResult_Failed(t *testing.T) {
	deps := &handlerDeps{
		tasks: &mockTaskStore{
			findByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
				return &model.Task{
					ID:           id,
					Status:       model.TaskStatusFailed,
					ErrorMessage: "申請者が見つかりません",
				}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/t1/result", nil), "taskID", "t1")
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "申請者が見つかりません") {
		t.Errorf("body should contain the error message: %s", rec.Body.String())
	}
}

func TestGetResult_Pending(t *testing.T) {
	deps := &handlerDeps{
		tasks: &mockTaskStore{
			findByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
				return &model.Task{ID: id, Status: model.TaskStatusPending}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/t1/result", nil), "taskID", "t1")
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"pending"`) {
		t.Errorf("body should report pending status: %s", rec.Body.String())
	}
}

func TestGetResult_NotFound(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{tasks: &mockTaskStore{}})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/unknown/result", nil), "taskID", "unknown")
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- GetTask ---

func TestGetTask_Success(t *testing.T) {
	deps := &handlerDeps{
		tasks: &mockTaskStore{
			findByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
				return &model.Task{ID: id, Status: model.TaskStatusDone, ResultFile: "results/r.xml"}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/t1", nil), "taskID", "t1")
	rec := httptest.NewRecorder()

	h.GetTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	envelope := decodeEnvelope(t, rec.Body)
	payload, ok := envelope.Response.(map[string]any)
	if !ok {
		t.Fatalf("response payload type: %T", envelope.Response)
	}
	if payload["task_id"] != "t1" || payload["status"] != "done" {
		t.Errorf("payload = %v", payload)
	}
}

// --- GetMember / GetMemberRealEstate ---

func TestGetMember_Success(t *testing.T) {
	deps := &handlerDeps{
		members: &mockMemberReader{
			findByIDFunc: func(ctx context.Context, id int64) (*model.Member, error) {
				return &model.Member{
					ID:         id,
					TaskID:     "t1",
					LastName:   "Иванов",
					FirstName:  "Иван",
					MiddleName: "Иванович",
					BirthDate:  "1980-05-15",
					Relation:   "Заявитель",
				}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/members/7", nil), "memberID", "7")
	rec := httptest.NewRecorder()

	h.GetMember(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Иванов Иван Иванович") {
		t.Errorf("body should contain the FIO: %s", rec.Body.String())
	}
}

func TestGetMember_NotFound(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{members: &mockMemberReader{}})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/members/7", nil), "memberID", "7")
	rec := httptest.NewRecorder()

	h.GetMember(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetMember_InvalidID(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{members: &mockMemberReader{}})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/members/abc", nil), "memberID", "abc")
	rec := httptest.NewRecorder()

	h.GetMember(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetMemberRealEstate_Success(t *testing.T) {
	deps := &handlerDeps{
		members: &mockMemberReader{
			findByIDFunc: func(ctx context.Context, id int64) (*model.Member, error) {
				return &model.Member{ID: id, TaskID: "t1"}, nil
			},
		},
		realEstate: &mockRealEstateReader{
			listFunc: func(ctx context.Context, memberID int64) ([]*model.RealEstateObject, error) {
				return []*model.RealEstateObject{
					{ID: 1, MemberID: memberID, Type: "Квартира", Address: "г. Москва", Ownership: "Собственность"},
				}, nil
			},
		},
	}
	h := newTestHandler(t, deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/members/7/real-estate", nil), "memberID", "7")
	rec := httptest.NewRecorder()

	h.GetMemberRealEstate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Квартира") {
		t.Errorf("body should contain real estate objects: %s", rec.Body.String())
	}
}

func TestGetMemberRealEstate_MemberNotFound(t *testing.T) {
	h := newTestHandler(t, &handlerDeps{
		members:    &mockMemberReader{},
		realEstate: &mockRealEstateReader{},
	})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/family/members/7/real-estate", nil), "memberID", "7")
	rec := httptest.NewRecorder()

	h.GetMemberRealEstate(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
