package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/factcheck/internal/model"
)

// PostgresVerdictStore はverdict_cacheテーブルを使用した判定結果キャッシュ。
type PostgresVerdictStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresVerdictStore はPostgresVerdictStoreを生成する。
func NewPostgresVerdictStore(db *sql.DB) *PostgresVerdictStore {
	return &PostgresVerdictStore{db: db, now: time.Now}
}

// Get は鮮度期間内のエントリを返す。ミスの場合はnilを返す。
func (s *PostgresVerdictStore) Get(ctx context.Context, subjectID, fingerprint string) (*model.Verdict, error) {
	threshold := s.now().Add(-model.FreshnessWindow)

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM verdict_cache
		 WHERE subject_id = $1 AND content_hash = $2 AND created_at > $3`,
		subjectID, fingerprint, threshold,
	).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}

	var v model.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗しました: %w", err)
	}
	return &v, nil
}

// Put はエントリを置き換え、created_atをリセットする。
func (s *PostgresVerdictStore) Put(ctx context.Context, subjectID, fingerprint string, verdict *model.Verdict) error {
	raw, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("判定結果のエンコードに失敗しました: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verdict_cache (subject_id, content_hash, result, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subject_id, content_hash)
		 DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at`,
		subjectID, fingerprint, raw, s.now(),
	)
	if err != nil {
		return fmt.Errorf("キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

var _ VerdictStore = (*PostgresVerdictStore)(nil)
