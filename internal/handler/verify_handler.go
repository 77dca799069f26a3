package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/factcheck/internal/middleware"
	"github.com/hitoshi/factcheck/internal/model"
)

// VerifyServiceInterface は検証ハンドラーが必要とするサービスインターフェース。
type VerifyServiceInterface interface {
	// Verify は記事のファクトチェック結果を返す。
	Verify(ctx context.Context, subjectID string) (*model.Verdict, error)
}

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue() (string, error)
}

// VerifyHandler は検証リクエストとトークン発行のHTTPハンドラー。
type VerifyHandler struct {
	service VerifyServiceInterface
	issuer  TokenIssuer
	logger  *slog.Logger
}

// NewVerifyHandler はVerifyHandlerを生成する。
func NewVerifyHandler(service VerifyServiceInterface, issuer TokenIssuer, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{service: service, issuer: issuer, logger: logger}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token は偽造防止トークンを発行する。
// GET /token
func (h *VerifyHandler) Token(w http.ResponseWriter, r *http.Request) {
	token, err := h.issuer.Issue()
	if err != nil {
		h.logger.Error("failed to issue token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(tokenResponse{Token: token})
}

// Verify は記事のファクトチェックを実行する。
// POST /verify (form: subject_id, auth_token)
//
// トークン検証はミドルウェアで行う。検証処理の失敗はすべて200の失敗エンベロープで返す。
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.FormValue("subject_id"))
	if subjectID == "" {
		middleware.WriteErrorResponse(w, http.StatusOK, model.NewInvalidRequestError("subject_id is required"))
		return
	}

	verdict, err := h.service.Verify(r.Context(), subjectID)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			h.logger.Error("verification failed",
				slog.String("subject_id", subjectID),
				slog.String("error", err.Error()),
			)
			apiErr = model.NewInternalError()
		}
		middleware.WriteErrorResponse(w, http.StatusOK, apiErr)
		return
	}

	middleware.WriteSuccess(w, verdict)
}
