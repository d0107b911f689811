// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// apiResponse は全エンドポイント共通のレスポンス封筒。
type apiResponse struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	Response    any    `json:"response,omitempty"`
	RequestedAt string `json:"requested_at"`
}

// writeResponse は共通封筒でJSONレスポンスを書き込む。
func writeResponse(w http.ResponseWriter, status int, message string, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{
		Status:      status,
		Message:     message,
		Response:    payload,
		RequestedAt: time.Now().Format("02.01.2006 15:04"),
	})
}

// writeError はエラーメッセージのみの封筒レスポンスを書き込む。
func writeError(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, message, nil)
}
