package handler

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/factcheck/internal/config"
	"github.com/hitoshi/factcheck/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var widgetTemplate = template.Must(
	template.New("widget.html").
		Funcs(template.FuncMap{
			"truncateTitle": func(s string) string { return truncateTitle(s, maxSourceTitleLen) },
		}).
		ParseFS(templateFS, "templates/widget.html"),
)

const maxSourceTitleLen = 80

// WidgetServiceInterface はウィジェットハンドラーが必要とするサービスインターフェース。
type WidgetServiceInterface interface {
	// Cached は記事と、現在の本文に対する鮮度期間内の結果を返す。
	Cached(ctx context.Context, subjectID string) (*model.Subject, *model.Verdict, error)
}

// WidgetConfig はウィジェットの表示設定。
type WidgetConfig struct {
	ThemeMode string
	Colors    config.Colors
	SiteName  string
}

// WidgetHandler は記事に埋め込むファクトチェックウィジェットのHTTPハンドラー。
type WidgetHandler struct {
	service WidgetServiceInterface
	config  WidgetConfig
	logger  *slog.Logger
}

// NewWidgetHandler はWidgetHandlerを生成する。
func NewWidgetHandler(service WidgetServiceInterface, cfg WidgetConfig, logger *slog.Logger) *WidgetHandler {
	return &WidgetHandler{service: service, config: cfg, logger: logger}
}

type widgetView struct {
	SubjectID string
	Title     string
	SiteName  string
	ThemeMode string
	Colors    config.Colors
	Result    *resultView
}

type resultView struct {
	Score       int
	Status      string
	Description string
	StatusClass string
	StatusText  string
	Issues      []model.Issue
	Sources     []model.Source
}

// Widget はウィジェットHTMLを返す。鮮度期間内の結果がある場合は結果パネルも含める。
// GET /subjects/{id}/widget
func (h *WidgetHandler) Widget(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")

	subject, verdict, err := h.service.Cached(r.Context(), subjectID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeSubjectNotFound {
			http.Error(w, apiErr.Message, http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load widget",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	view := widgetView{
		SubjectID: subject.ID,
		Title:     subject.Title,
		SiteName:  h.config.SiteName,
		ThemeMode: h.config.ThemeMode,
		Colors:    h.config.Colors,
	}
	if verdict != nil {
		view.Result = newResultView(verdict)
	}

	var buf bytes.Buffer
	if err := widgetTemplate.Execute(&buf, view); err != nil {
		h.logger.Error("failed to render widget",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func newResultView(v *model.Verdict) *resultView {
	class, text := scoreClass(v.Score)
	status := v.Status
	if status == "" {
		status = "Analysis Complete"
	}
	description := v.Description
	if description == "" {
		description = "Web search and fact-checking analysis completed."
	}
	return &resultView{
		Score:       v.Score,
		Status:      status,
		Description: description,
		StatusClass: class,
		StatusText:  text,
		Issues:      v.Issues,
		Sources:     v.Sources,
	}
}

// scoreClass はスコアから表示クラスとラベルを決める。
func scoreClass(score int) (string, string) {
	switch {
	case score < 50:
		return "error", "⚠ Issues Found"
	case score < 80:
		return "warning", "⚠ Needs Review"
	default:
		return "good", "✓ Verified"
	}
}

// truncateTitle はタイトルをmaxLen文字以内に切り詰める。切り詰めた場合は末尾に"..."を付ける。
func truncateTitle(title string, maxLen int) string {
	if utf8.RuneCountInString(title) <= maxLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxLen-3]) + "..."
}
