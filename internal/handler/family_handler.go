package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/NodirbekRare/famestate/internal/model"
)

// TaskStoreInterface はハンドラーが必要とするタスク操作のインターフェース。
type TaskStoreInterface interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, id string) (*model.Task, error)
}

// MemberReaderInterface は構成員参照のインターフェース。
type MemberReaderInterface interface {
	FindByID(ctx context.Context, id int64) (*model.Member, error)
}

// RealEstateReaderInterface は不動産参照のインターフェース。
type RealEstateReaderInterface interface {
	ListByMemberID(ctx context.Context, memberID int64) ([]*model.RealEstateObject, error)
}

// ProcessorInterface はタスク処理パイプラインの起動インターフェース。
type ProcessorInterface interface {
	Process(ctx context.Context, taskID string) error
}

// FamilyHandler は家族XML処理APIのHTTPハンドラー。
type FamilyHandler struct {
	tasks        TaskStoreInterface
	members      MemberReaderInterface
	realEstate   RealEstateReaderInterface
	processor    ProcessorInterface
	logger       *slog.Logger
	uploadDir    string
	maxInputSize int64
}

// NewFamilyHandler はFamilyHandlerを生成する。
func NewFamilyHandler(
	tasks TaskStoreInterface,
	members MemberReaderInterface,
	realEstate RealEstateReaderInterface,
	processor ProcessorInterface,
	logger *slog.Logger,
	uploadDir string,
	maxInputSize int64,
) *FamilyHandler {
	return &FamilyHandler{
		tasks:        tasks,
		members:      members,
		realEstate:   realEstate,
		processor:    processor,
		logger:       logger,
		uploadDir:    uploadDir,
		maxInputSize: maxInputSize,
	}
}

// taskResponse はタスク情報のAPIレスポンス。
type taskResponse struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	ResultFile   string `json:"result_file,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// memberResponse は構成員情報のAPIレスポンス。
type memberResponse struct {
	ID          int64  `json:"id"`
	TaskID      string `json:"task_id"`
	FIO         string `json:"fio"`
	BirthDate   string `json:"birth_date"`
	Relation    string `json:"relation"`
	IsApplicant bool   `json:"is_applicant"`
}

// realEstateResponse は不動産情報のAPIレスポンス。
type realEstateResponse struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Address   string `json:"address"`
	Ownership string `json:"ownership"`
}

// processRequest は処理開始リクエストのボディ。
type processRequest struct {
	TaskID string `json:"task_id"`
}

// Upload は家族XMLファイルのアップロードを処理する。
// POST /api/family/upload
//
// multipart/form-dataのfileフィールドでXMLファイルを受け取り、
// アップロードディレクトリへ保存して新しいタスクを作成する。
// サイズ上限を超えるリクエストは拒否する。
func (h *FamilyHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// multipartのオーバーヘッド分を上乗せして全体を制限する
	r.Body = http.MaxBytesReader(w, r.Body, h.maxInputSize+64*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("ファイルサイズが上限を超えています（上限: %dバイト）", h.maxInputSize))
			return
		}
		writeError(w, http.StatusBadRequest, "fileフィールドのファイルが必要です")
		return
	}
	defer file.Close()

	if header.Size > h.maxInputSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("ファイルサイズが上限を超えています（上限: %dバイト）", h.maxInputSize))
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.logger.Error("アップロードディレクトリの作成に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "ファイルの保存に失敗しました")
		return
	}

	taskID := uuid.NewString()
	path := filepath.Join(h.uploadDir, taskID+".xml")
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		h.logger.Error("アップロードファイルの作成に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "ファイルの保存に失敗しました")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, "ファイルの保存に失敗しました")
		return
	}

	task := &model.Task{ID: taskID, InputFile: path}
	if err := h.tasks.Create(r.Context(), task); err != nil {
		os.Remove(path)
		h.logger.Error("タスクの作成に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "タスクの作成に失敗しました")
		return
	}

	h.logger.Info("タスクを作成しました",
		slog.String("task_id", taskID),
		slog.String("file_name", header.Filename),
		slog.Int64("file_size", header.Size),
	)

	writeResponse(w, http.StatusCreated, "タスクを作成しました", taskResponse{
		TaskID: taskID,
		Status: string(model.TaskStatusPending),
	})
}

// Process はタスク処理の即時開始を要求する。
// POST /api/family/process
//
// バックグラウンドワーカーの次回サイクルを待たずに処理を開始する。
// 処理自体は非同期で行われるため、202を返す。
func (h *FamilyHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_idが必要です")
		return
	}

	task, err := h.tasks.FindByID(r.Context(), req.TaskID)
	if err != nil {
		h.logger.Error("タスクの取得に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "タスクの取得に失敗しました")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "指定されたタスクが見つかりません")
		return
	}
	if task.Status == model.TaskStatusProcessing {
		writeError(w, http.StatusConflict, "タスクは処理中です")
		return
	}

	// リクエストのキャンセルに処理を巻き込まないよう、独立したコンテキストで実行する
	go func(taskID string) {
		if err := h.processor.Process(context.Background(), taskID); err != nil {
			h.logger.Error("タスク処理に失敗しました",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
		}
	}(task.ID)

	writeResponse(w, http.StatusAccepted, "タスク処理を開始しました", taskResponse{
		TaskID: task.ID,
		Status: string(model.TaskStatusProcessing),
	})
}

// GetTask はタスクの状態を返す。
// GET /api/family/{taskID}
func (h *FamilyHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.tasks.FindByID(r.Context(), taskID)
	if err != nil {
		h.logger.Error("タスクの取得に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "タスクの取得に失敗しました")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "指定されたタスクが見つかりません")
		return
	}

	writeResponse(w, http.StatusOK, "タスク状態", taskResponse{
		TaskID:       task.ID,
		Status:       string(task.Status),
		ResultFile:   task.ResultFile,
		ErrorMessage: task.ErrorMessage,
	})
}

// GetResult はタスクの結果XMLを返す。
// GET /api/family/{taskID}/result
//
// タスクがdoneの場合は結果XMLをそのまま返す。
// 未完了の場合は現在の状態を、failedの場合はエラーメッセージを返す。
func (h *FamilyHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.tasks.FindByID(r.Context(), taskID)
	if err != nil {
		h.logger.Error("タスクの取得に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "タスクの取得に失敗しました")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "指定されたタスクが見つかりません")
		return
	}

	switch task.Status {
	case model.TaskStatusDone:
		f, err := os.Open(task.ResultFile)
		if err != nil {
			h.logger.Error("結果ファイルを開けません",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "結果ファイルの読み取りに失敗しました")
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filepath.Base(task.ResultFile)))
		io.Copy(w, f)
	case model.TaskStatusFailed:
		writeResponse(w, http.StatusUnprocessableEntity, "タスクは失敗しました", taskResponse{
			TaskID:       task.ID,
			Status:       string(task.Status),
			ErrorMessage: task.ErrorMessage,
		})
	default:
		writeResponse(w, http.StatusOK, "タスクは未完了です", taskResponse{
			TaskID: task.ID,
			Status: string(task.Status),
		})
	}
}

// GetMember は構成員の詳細を返す。
// GET /api/family/members/{memberID}
func (h *FamilyHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "memberIDが不正です")
		return
	}

	member, err := h.members.FindByID(r.Context(), memberID)
	if err != nil {
		h.logger.Error("構成員の取得に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "構成員の取得に失敗しました")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "指定された構成員が見つかりません")
		return
	}

	writeResponse(w, http.StatusOK, "構成員情報", memberResponse{
		ID:          member.ID,
		TaskID:      member.TaskID,
		FIO:         member.FullName(),
		BirthDate:   member.BirthDate,
		Relation:    member.Relation,
		IsApplicant: member.IsApplicant,
	})
}

// GetMemberRealEstate は構成員の不動産一覧を返す。
// GET /api/family/members/{memberID}/real-estate
func (h *FamilyHandler) GetMemberRealEstate(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "memberIDが不正です")
		return
	}

	member, err := h.members.FindByID(r.Context(), memberID)
	if err != nil {
		h.logger.Error("構成員の取得に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "構成員の取得に失敗しました")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "指定された構成員が見つかりません")
		return
	}

	objects, err := h.realEstate.ListByMemberID(r.Context(), memberID)
	if err != nil {
		h.logger.Error("不動産一覧の取得に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "不動産一覧の取得に失敗しました")
		return
	}

	payload := make([]realEstateResponse, 0, len(objects))
	for _, obj := range objects {
		payload = append(payload, realEstateResponse{
			ID:        obj.ID,
			Type:      obj.Type,
			Address:   obj.Address,
			Ownership: obj.Ownership,
		})
	}

	writeResponse(w, http.StatusOK, "不動産一覧", payload)
}
