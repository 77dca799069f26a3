package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/factcheck/internal/model"
)

// --- モック定義 ---

// mockService はFactCheckServiceのモック実装。
type mockService struct {
	verifyFn         func(ctx context.Context, subjectID string) (*model.Verdict, error)
	cachedFn         func(ctx context.Context, subjectID string) (*model.Subject, *model.Verdict, error)
	saveSubjectFn    func(ctx context.Context, subject *model.Subject) error
	testConnectionFn func(ctx context.Context, apiKey, modelName string) error
}

func (m *mockService) Verify(ctx context.Context, subjectID string) (*model.Verdict, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, subjectID)
	}
	return nil, nil
}

func (m *mockService) Cached(ctx context.Context, subjectID string) (*model.Subject, *model.Verdict, error) {
	if m.cachedFn != nil {
		return m.cachedFn(ctx, subjectID)
	}
	return nil, nil, nil
}

func (m *mockService) SaveSubject(ctx context.Context, subject *model.Subject) error {
	if m.saveSubjectFn != nil {
		return m.saveSubjectFn(ctx, subject)
	}
	return nil
}

func (m *mockService) TestConnection(ctx context.Context, apiKey, modelName string) error {
	if m.testConnectionFn != nil {
		return m.testConnectionFn(ctx, apiKey, modelName)
	}
	return nil
}

// mockIssuer はTokenIssuerのモック実装。
type mockIssuer struct {
	token string
	err   error
}

func (m *mockIssuer) Issue() (string, error) {
	return m.token, m.err
}

// mockPinger はHealthCheckerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func sampleVerdict() *model.Verdict {
	return &model.Verdict{
		Score:       72,
		Status:      "Mostly Accurate",
		Description: "Minor issues found.",
		Issues: []model.Issue{
			{Type: "Outdated statistic", Description: "The 2019 figure was revised.", Suggestion: "Cite the 2023 report."},
		},
		Sources: []model.Source{
			{Title: "Official report", URL: "https://example.org/report"},
		},
	}
}
