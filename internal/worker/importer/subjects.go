package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/factcheck/internal/model"
	"github.com/hitoshi/factcheck/internal/repository"
	"github.com/hitoshi/factcheck/internal/security"
)

// SubjectImporter はパース済みエントリをサニタイズして記事として保存する。
type SubjectImporter struct {
	subjects  repository.SubjectRepository
	sanitizer security.ContentSanitizer
	logger    *slog.Logger
}

// NewSubjectImporter はSubjectImporterを生成する。
func NewSubjectImporter(subjects repository.SubjectRepository, sanitizer security.ContentSanitizer, logger *slog.Logger) *SubjectImporter {
	return &SubjectImporter{subjects: subjects, sanitizer: sanitizer, logger: logger}
}

// Import はエントリを記事としてUPSERTし、新規または内容が変わった件数を返す。
// GUIDもリンクも持たないエントリはスキップする。
// 内容が変わらないエントリは書き込まない（updated_atを動かさない）。
func (im *SubjectImporter) Import(ctx context.Context, feedURL string, entries []model.ParsedEntry) (int, error) {
	imported := 0

	for _, entry := range entries {
		id := SubjectIDFor(entry)
		if id == "" {
			im.logger.Warn("GUIDとリンクがないエントリをスキップしました",
				slog.String("feed_url", feedURL),
				slog.String("title", entry.Title),
			)
			continue
		}

		subject := &model.Subject{
			ID:      id,
			Title:   im.sanitizer.SanitizeTitle(entry.Title),
			Link:    entry.Link,
			Content: im.sanitizer.Sanitize(entry.Content),
			Source:  feedURL,
		}

		existing, err := im.subjects.FindByID(ctx, id)
		if err != nil {
			return imported, fmt.Errorf("記事の検索に失敗しました: %w", err)
		}
		if existing != nil && unchanged(existing, subject) {
			continue
		}

		if err := im.subjects.Upsert(ctx, subject); err != nil {
			return imported, fmt.Errorf("記事の保存に失敗しました: %w", err)
		}
		imported++
	}

	return imported, nil
}

func unchanged(a, b *model.Subject) bool {
	return a.Title == b.Title && a.Link == b.Link && a.Content == b.Content && a.Source == b.Source
}
