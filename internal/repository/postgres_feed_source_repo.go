package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/factcheck/internal/model"
)

// PostgresFeedSourceRepo はPostgreSQLを使用した取り込み元フィードリポジトリ。
type PostgresFeedSourceRepo struct {
	db *sql.DB
}

// NewPostgresFeedSourceRepo はPostgresFeedSourceRepoを生成する。
func NewPostgresFeedSourceRepo(db *sql.DB) *PostgresFeedSourceRepo {
	return &PostgresFeedSourceRepo{db: db}
}

const feedSourceColumns = `id, feed_url, site_url, title, etag, last_modified,
	fetch_status, consecutive_errors, error_message, next_fetch_at, created_at, updated_at`

// EnsureFeedURLs は指定URLのフィード行が存在しない場合に作成する。
func (r *PostgresFeedSourceRepo) EnsureFeedURLs(ctx context.Context, feedURLs []string) error {
	for _, u := range feedURLs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO feed_sources (feed_url) VALUES ($1)
			 ON CONFLICT (feed_url) DO NOTHING`,
			u,
		)
		if err != nil {
			return fmt.Errorf("フィードの登録に失敗しました (%s): %w", u, err)
		}
	}
	return nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.FeedSource, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedSourceColumns+` FROM feed_sources WHERE feed_url = $1`,
		feedURL,
	)
	f, err := scanFeedSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるフィードの検索に失敗しました: %w", err)
	}
	return f, nil
}

// ListDueForFetch はフェッチ対象のフィードを取得する。
func (r *PostgresFeedSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.FeedSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedSourceColumns+`
		 FROM feed_sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.FeedSource
	for rows.Next() {
		f, err := scanFeedSource(rows)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの走査に失敗しました: %w", err)
	}
	return feeds, nil
}

// UpdateFetchState はフィードのフェッチ状態とメタデータを更新する。
func (r *PostgresFeedSourceRepo) UpdateFetchState(ctx context.Context, f *model.FeedSource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_sources SET
		    title = $2,
		    site_url = $3,
		    fetch_status = $4,
		    consecutive_errors = $5,
		    error_message = $6,
		    next_fetch_at = $7,
		    etag = $8,
		    last_modified = $9,
		    updated_at = now()
		 WHERE id = $1`,
		f.ID, f.Title, f.SiteURL,
		string(f.FetchStatus), f.ConsecutiveErrors, f.ErrorMessage,
		f.NextFetchAt, f.ETag, f.LastModified,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedSource(row rowScanner) (*model.FeedSource, error) {
	f := &model.FeedSource{}
	var status string
	if err := row.Scan(
		&f.ID, &f.FeedURL, &f.SiteURL, &f.Title, &f.ETag, &f.LastModified,
		&status, &f.ConsecutiveErrors, &f.ErrorMessage,
		&f.NextFetchAt, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.FetchStatus = model.FetchStatus(status)
	return f, nil
}

var _ FeedSourceRepository = (*PostgresFeedSourceRepo)(nil)
