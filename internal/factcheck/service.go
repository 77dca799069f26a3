// Package factcheck は記事のファクトチェックを行う検証サービスを提供する。
// 記事の取得、フィンガープリント計算、キャッシュ参照、AIゲートウェイ呼び出しを組み合わせる。
package factcheck

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/factcheck/internal/metrics"
	"github.com/hitoshi/factcheck/internal/model"
	"github.com/hitoshi/factcheck/internal/openrouter"
	"github.com/hitoshi/factcheck/internal/repository"
)

// Gateway はAIプロバイダへの検証リクエストを抽象化するインターフェース。
type Gateway interface {
	Verify(ctx context.Context, req openrouter.Request) (*model.Verdict, error)
	TestConnection(ctx context.Context, apiKey, modelName string) error
}

// Settings は検証サービスの設定。
type Settings struct {
	Enabled           bool
	APIKey            string
	Model             string
	WebSearchCount    int
	SearchContextSize string
}

func (s Settings) configured() bool {
	return s.Enabled && s.APIKey != ""
}

// Service はファクトチェックの検証サービス。
type Service struct {
	subjects repository.SubjectRepository
	store    repository.VerdictStore
	gateway  Gateway
	settings Settings
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subjects repository.SubjectRepository,
	store repository.VerdictStore,
	gateway Gateway,
	settings Settings,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		subjects: subjects,
		store:    store,
		gateway:  gateway,
		settings: settings,
		metrics:  mc,
		logger:   logger,
	}
}

// Verify は記事のファクトチェック結果を返す。
// 同じ本文に対する鮮度期間内の結果があればAIを呼ばずにそれを返す。
// エラーは常に*model.APIErrorとして返す。
func (s *Service) Verify(ctx context.Context, subjectID string) (*model.Verdict, error) {
	verdict, err := s.verify(ctx, subjectID)
	if err != nil {
		s.metrics.RecordVerify(metrics.OutcomeError)
		return nil, err
	}
	return verdict, nil
}

func (s *Service) verify(ctx context.Context, subjectID string) (*model.Verdict, error) {
	if !s.settings.configured() {
		return nil, model.NewConfigError()
	}

	subject, err := s.findSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	fingerprint := repository.Fingerprint(subject.Content)

	if cached := s.lookup(ctx, subject.ID, fingerprint); cached != nil {
		s.metrics.RecordVerify(metrics.OutcomeCacheHit)
		return cached, nil
	}

	verdict, err := s.gateway.Verify(ctx, openrouter.Request{
		APIKey:            s.settings.APIKey,
		Model:             s.settings.Model,
		Content:           subject.Content,
		WebSearchCount:    s.settings.WebSearchCount,
		SearchContextSize: s.settings.SearchContextSize,
	})
	if err != nil {
		return nil, s.mapGatewayError(subject.ID, err)
	}

	if verdict.Degraded {
		s.metrics.RecordVerify(metrics.OutcomeDegraded)
		return verdict, nil
	}

	if err := s.store.Put(ctx, subject.ID, fingerprint, verdict); err != nil {
		s.logger.Error("検証結果のキャッシュ保存に失敗しました",
			slog.String("subject_id", subject.ID),
			slog.String("error", err.Error()),
		)
	}
	s.metrics.RecordVerify(metrics.OutcomeVerified)
	return verdict, nil
}

// Cached は記事の現在の本文に対する鮮度期間内の結果を返す。
// 結果がない場合、または記事が存在しない場合はnilを返す。
func (s *Service) Cached(ctx context.Context, subjectID string) (*model.Subject, *model.Verdict, error) {
	subject, err := s.findSubject(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}
	return subject, s.lookup(ctx, subject.ID, repository.Fingerprint(subject.Content)), nil
}

// SaveSubject は記事を作成または更新する。
func (s *Service) SaveSubject(ctx context.Context, subject *model.Subject) error {
	subject.ID = strings.TrimSpace(subject.ID)
	if subject.ID == "" {
		return model.NewInvalidRequestError("subject id is required")
	}
	if err := s.subjects.Upsert(ctx, subject); err != nil {
		s.logger.Error("記事の保存に失敗しました",
			slog.String("subject_id", subject.ID),
			slog.String("error", err.Error()),
		)
		return model.NewInternalError()
	}
	return nil
}

// TestConnection はAPIキーとモデルの疎通を確認する。
// 空の引数は現在の設定値で補う。
func (s *Service) TestConnection(ctx context.Context, apiKey, modelName string) error {
	if apiKey == "" {
		apiKey = s.settings.APIKey
	}
	if modelName == "" {
		modelName = s.settings.Model
	}
	if apiKey == "" {
		return model.NewConfigError()
	}

	err := s.gateway.TestConnection(ctx, apiKey, modelName)
	if err == nil {
		return nil
	}
	if errors.Is(err, openrouter.ErrInvalidResponse) {
		return model.NewUpstreamError(200, "Invalid API response format")
	}
	return s.mapGatewayError("", err)
}

func (s *Service) findSubject(ctx context.Context, subjectID string) (*model.Subject, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, model.NewSubjectNotFoundError(subjectID)
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		s.logger.Error("記事の読み込みに失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError()
	}
	if subject == nil {
		return nil, model.NewSubjectNotFoundError(subjectID)
	}
	return subject, nil
}

// lookup はキャッシュを参照する。読み取り失敗はミスとして扱う。
func (s *Service) lookup(ctx context.Context, subjectID, fingerprint string) *model.Verdict {
	cached, err := s.store.Get(ctx, subjectID, fingerprint)
	if err != nil {
		s.logger.Warn("検証結果キャッシュの読み込みに失敗したためミスとして扱います",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		cached = nil
	}
	s.metrics.RecordCacheLookup(cached != nil)
	return cached
}

func (s *Service) mapGatewayError(subjectID string, err error) *model.APIError {
	var trErr *openrouter.TransportError
	var upErr *openrouter.UpstreamError

	switch {
	case errors.As(err, &upErr):
		s.logger.Warn("AIプロバイダがエラーを返しました",
			slog.String("subject_id", subjectID),
			slog.Int("status", upErr.Status),
			slog.String("message", upErr.Message),
		)
		return model.NewUpstreamError(upErr.Status, upErr.Message)
	case errors.As(err, &trErr):
		s.logger.Warn("AIプロバイダへのリクエストに失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("error", trErr.Err.Error()),
		)
		return model.NewTransportError(trErr.Err.Error())
	default:
		s.logger.Error("検証に失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		return model.NewInternalError()
	}
}
