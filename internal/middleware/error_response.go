// Package middleware はHTTPミドルウェアとレスポンスエンベロープを提供する。
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/factcheck/internal/model"
)

// SuccessEnvelope は成功時の応答フォーマット。
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope は失敗時の応答フォーマット。
// Dataにはユーザー向けメッセージ文字列が入る。
type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Data      string `json:"data"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// WriteSuccess は{"success":true,"data":...}を200で書き込む。
func WriteSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true, Data: data})
}

// WriteErrorResponse は失敗エンベロープを指定ステータスで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{
		Success:   false,
		Data:      apiErr.Message,
		Code:      apiErr.Code,
		Retryable: apiErr.Retryable,
	})
}

// WriteInternalServerError は内部エラーの失敗エンベロープを500で書き込む。
// 詳細はログのみに記録し、応答には含めない。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
