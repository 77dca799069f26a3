package importer

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/factcheck/internal/model"
)

// --- モック定義 ---

// mockFeedRepo はFeedLister/FeedStateUpdaterのテスト用モック。
type mockFeedRepo struct {
	mu sync.Mutex

	ensureFunc          func(ctx context.Context, feedURLs []string) error
	listDueForFetchFunc func(ctx context.Context) ([]*model.FeedSource, error)
	updateErr           error

	ensured []string
	updated []model.FeedSource
}

func (m *mockFeedRepo) EnsureFeedURLs(ctx context.Context, feedURLs []string) error {
	m.mu.Lock()
	m.ensured = append(m.ensured, feedURLs...)
	m.mu.Unlock()
	if m.ensureFunc != nil {
		return m.ensureFunc(ctx, feedURLs)
	}
	return nil
}

func (m *mockFeedRepo) ListDueForFetch(ctx context.Context) ([]*model.FeedSource, error) {
	if m.listDueForFetchFunc != nil {
		return m.listDueForFetchFunc(ctx)
	}
	return nil, nil
}

func (m *mockFeedRepo) UpdateFetchState(_ context.Context, feed *model.FeedSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, *feed)
	return m.updateErr
}

func (m *mockFeedRepo) lastUpdate() (model.FeedSource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updated) == 0 {
		return model.FeedSource{}, false
	}
	return m.updated[len(m.updated)-1], true
}

// mockImporter はEntryImporterのテスト用モック。
type mockImporter struct {
	count      int
	err        error
	calledWith []model.ParsedEntry
	feedURL    string
}

func (m *mockImporter) Import(_ context.Context, feedURL string, entries []model.ParsedEntry) (int, error) {
	m.feedURL = feedURL
	m.calledWith = entries
	return m.count, m.err
}

// mockGuard はsecurity.URLGuardのテスト用モック。
// httptestサーバー（ループバック）に接続できるよう通常のクライアントを返す。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockMetrics はmetrics.MetricsCollectorのテスト用モック。
type mockMetrics struct {
	mu             sync.Mutex
	successes      int
	failures       []string
	parseFailures  int
	httpStatuses   []int
	latencies      int
	importedTotals int
}

func (m *mockMetrics) RecordVerify(string) {}
func (m *mockMetrics) RecordCacheLookup(bool) {}
func (m *mockMetrics) RecordUpstreamStatus(int) {}
func (m *mockMetrics) RecordUpstreamLatency(time.Duration) {}

func (m *mockMetrics) RecordFetchSuccess(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

func (m *mockMetrics) RecordFetchFailure(_ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}

func (m *mockMetrics) RecordParseFailure(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseFailures++
}

func (m *mockMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpStatuses = append(m.httpStatuses, code)
}

func (m *mockMetrics) RecordFetchLatency(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *mockMetrics) RecordSubjectsImported(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importedTotals += n
}

// --- テストヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
