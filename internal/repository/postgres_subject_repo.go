package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/factcheck/internal/model"
)

// PostgresSubjectRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresSubjectRepo struct {
	db *sql.DB
}

// NewPostgresSubjectRepo はPostgresSubjectRepoを生成する。
func NewPostgresSubjectRepo(db *sql.DB) *PostgresSubjectRepo {
	return &PostgresSubjectRepo{db: db}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresSubjectRepo) FindByID(ctx context.Context, id string) (*model.Subject, error) {
	s := &model.Subject{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, link, content, source, created_at, updated_at
		 FROM subjects WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Title, &s.Link, &s.Content, &s.Source, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return s, nil
}

// Upsert は記事を作成または更新する。
func (r *PostgresSubjectRepo) Upsert(ctx context.Context, s *model.Subject) error {
	source := s.Source
	if source == "" {
		source = model.SubjectSourceManual
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO subjects (id, title, link, content, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     link = EXCLUDED.link,
		     content = EXCLUDED.content,
		     source = EXCLUDED.source,
		     updated_at = now()
		 RETURNING created_at, updated_at`,
		s.ID, s.Title, s.Link, s.Content, source,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("記事の保存に失敗しました: %w", err)
	}
	s.Source = source
	return nil
}

var _ SubjectRepository = (*PostgresSubjectRepo)(nil)
