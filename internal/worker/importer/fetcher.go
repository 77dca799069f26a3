package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/factcheck/internal/metrics"
	"github.com/hitoshi/factcheck/internal/model"
	"github.com/hitoshi/factcheck/internal/security"
)

// EntryImporter はパース済みエントリを記事として保存する。
type EntryImporter interface {
	Import(ctx context.Context, feedURL string, entries []model.ParsedEntry) (int, error)
}

// FeedStateUpdater はフィードのフェッチ状態を保存する。
type FeedStateUpdater interface {
	UpdateFetchState(ctx context.Context, feed *model.FeedSource) error
}

// FetcherConfig はFetcherの動作設定。
type FetcherConfig struct {
	Timeout     time.Duration // HTTPタイムアウト
	MaxBodySize int64         // レスポンスボディの最大サイズ
	Interval    time.Duration // 成功時の次回フェッチまでの間隔
}

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、SubjectImporterによる記事保存を実行する。
type Fetcher struct {
	feedRepo FeedStateUpdater
	importer EntryImporter
	guard    security.URLGuard
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   FetcherConfig
	now      func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	feedRepo FeedStateUpdater,
	importer EntryImporter,
	guard security.URLGuard,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	return &Fetcher{
		feedRepo: feedRepo,
		importer: importer,
		guard:    guard,
		metrics:  mc,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// Fetch はフィードをフェッチし、結果に応じてフィード状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.FeedSource) error {
	start := time.Now()

	if err := f.guard.ValidateURL(feed.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "ssrf_blocked")
		ApplyStopFeed(feed, fmt.Sprintf("SSRF検証失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "FactCheck/1.0 Feed Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.guard.NewSafeClient(f.config.Timeout).Do(req)
	f.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "network")
		ApplyBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordHTTPStatus(resp.StatusCode)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("feed_url", feed.FeedURL),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		f.metrics.RecordFetchSuccess(feed.FeedURL)
		ApplySuccess(feed, f.config.Interval, f.now())
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("フィードフェッチを停止します",
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "http_stop")
		ApplyStopFeed(feed, reason, f.now())
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultBackoff:
		f.logger.Warn("フィードフェッチにバックオフを適用します",
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "http_backoff")
		ApplyBackoff(feed, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "http_unexpected")
		ApplyBackoff(feed, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode), f.now())
		return f.feedRepo.UpdateFetchState(ctx, feed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize))
	if err != nil {
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "read_body")
		ApplyBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()), f.now())
		return f.feedRepo.UpdateFetchState(ctx, feed)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordParseFailure(feed.FeedURL)
		ApplyParseFailure(feed, err.Error(), f.config.Interval, f.now())
		f.saveState(ctx, feed)
		return nil // パース失敗はフェッチエラーとしない（カウントして継続）
	}

	// パース成功後にのみ条件付きGETの検証子を更新する
	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}
	if parsed.Title != "" {
		feed.Title = parsed.Title
	}
	if parsed.Link != "" {
		feed.SiteURL = parsed.Link
	}

	entries := convertGofeedItems(parsed.Items)
	imported, err := f.importer.Import(ctx, feed.FeedURL, entries)
	f.metrics.RecordSubjectsImported(imported)
	if err != nil {
		f.logger.Error("記事の取り込みに失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.Int("imported", imported),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(feed.FeedURL, "import")
		// 次回も全件を取り直せるよう検証子は保存しない
		feed.ETag, feed.LastModified = "", ""
		ApplyBackoff(feed, fmt.Sprintf("記事取り込み失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return fmt.Errorf("記事取り込み失敗: %w", err)
	}

	f.metrics.RecordFetchSuccess(feed.FeedURL)
	ApplySuccess(feed, f.config.Interval, f.now())
	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Info("フィードフェッチが完了しました",
		slog.String("feed_url", feed.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("entries_total", len(entries)),
		slog.Int("subjects_imported", imported),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// saveState はフィード状態を保存し、失敗はログのみ記録する。
func (f *Fetcher) saveState(ctx context.Context, feed *model.FeedSource) {
	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
	}
}
