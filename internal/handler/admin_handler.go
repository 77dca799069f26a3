package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/factcheck/internal/middleware"
	"github.com/hitoshi/factcheck/internal/model"
	"github.com/hitoshi/factcheck/internal/repository"
)

// maxAdminBodySize は管理APIが受け付けるリクエストボディの上限（2MiB）。
const maxAdminBodySize = 2 << 20

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// SaveSubject は記事を作成または更新する。
	SaveSubject(ctx context.Context, subject *model.Subject) error
	// TestConnection はAPIキーとモデルの疎通を確認する。
	TestConnection(ctx context.Context, apiKey, modelName string) error
}

// AdminHandler は管理APIのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// putSubjectRequest は記事登録リクエストのボディ。
type putSubjectRequest struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Content string `json:"content"`
}

// subjectResponse は記事情報のAPIレスポンス。
type subjectResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	Fingerprint string `json:"fingerprint"`
}

// testConnectionRequest は疎通確認リクエストのボディ。空の場合は現在の設定を使う。
type testConnectionRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// PutSubject は記事を作成または更新する。
// PUT /admin/subjects/{id}
func (h *AdminHandler) PutSubject(w http.ResponseWriter, r *http.Request) {
	var req putSubjectRequest
	if err := decodeAdminBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	subject := &model.Subject{
		ID:      chi.URLParam(r, "id"),
		Title:   req.Title,
		Link:    req.Link,
		Content: req.Content,
		Source:  model.SubjectSourceManual,
	}
	if err := h.service.SaveSubject(r.Context(), subject); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, subjectResponse{
		ID:          subject.ID,
		Title:       subject.Title,
		Link:        subject.Link,
		Source:      subject.Source,
		Fingerprint: repository.Fingerprint(subject.Content),
	})
}

// TestConnection はAIプロバイダへの疎通を確認する。
// POST /admin/test-connection
func (h *AdminHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	// ボディなし（chunkedの空ボディを含む）は現在の設定での確認とする
	if err := decodeAdminBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeDecodeError(w, err)
		return
	}

	if err := h.service.TestConnection(r.Context(), req.APIKey, req.Model); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, "Connection successful")
}

// decodeAdminBody はmaxAdminBodySizeで制限したリクエストボディをJSONとしてデコードする。
// ボディが空の場合はio.EOFを返す。
func decodeAdminBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidRequestError("request body too large"))
		return
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
}
