// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/factcheck/internal/model"
)

// SubjectRepository は検証対象記事の永続化インターフェース。
type SubjectRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Subject, error)

	// Upsert は記事を作成または更新する。
	// 既存行のcreated_atは保持し、updated_atを現在時刻に更新する。
	Upsert(ctx context.Context, subject *model.Subject) error
}

// VerdictStore は判定結果キャッシュのインターフェース。
// エントリは(subjectID, fingerprint)ごとに最大1件で、鮮度期間を過ぎたものはミスとして扱う。
type VerdictStore interface {
	// Get は鮮度期間内のエントリを返す。ミスの場合はnilを返す。
	// 期限切れのエントリは削除しない。
	Get(ctx context.Context, subjectID, fingerprint string) (*model.Verdict, error)

	// Put はエントリを置き換え、作成時刻を現在時刻にリセットする。
	Put(ctx context.Context, subjectID, fingerprint string, verdict *model.Verdict) error
}

// FeedSourceRepository は取り込み元フィードの永続化インターフェース。
type FeedSourceRepository interface {
	// EnsureFeedURLs は指定URLのフィード行が存在しない場合に作成する。既存行は変更しない。
	EnsureFeedURLs(ctx context.Context, feedURLs []string) error

	// ListDueForFetch はnext_fetch_at <= now() かつ fetch_status = 'active' のフィードを返す。
	ListDueForFetch(ctx context.Context) ([]*model.FeedSource, error)

	// UpdateFetchState はフィードのフェッチ状態とメタデータを更新する。
	UpdateFetchState(ctx context.Context, feed *model.FeedSource) error
}
