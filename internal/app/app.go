// Package app はコマンドライン引数に応じた起動モードの選択と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/factcheck/internal/config"
	"github.com/hitoshi/factcheck/internal/database"
	"github.com/hitoshi/factcheck/internal/factcheck"
	"github.com/hitoshi/factcheck/internal/handler"
	"github.com/hitoshi/factcheck/internal/logger"
	"github.com/hitoshi/factcheck/internal/metrics"
	"github.com/hitoshi/factcheck/internal/middleware"
	"github.com/hitoshi/factcheck/internal/openrouter"
	"github.com/hitoshi/factcheck/internal/repository"
	"github.com/hitoshi/factcheck/internal/security"
	"github.com/hitoshi/factcheck/internal/worker/cleanup"
	"github.com/hitoshi/factcheck/internal/worker/importer"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envを読み込む（既存の環境変数は上書きしない）
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と check はサーバー設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandCheck:
		return runCheck(w, os.Stderr, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("result_store", cfg.ResultStore),
		slog.Bool("configured", cfg.Configured()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newMetrics はプロセス単位のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, metrics.NewCollector(registry)
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストアの初期化
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. メトリクス
	registry, collector := newMetrics()

	// 3. AIゲートウェイと検証サービス
	gateway := openrouter.NewClient(
		&http.Client{Timeout: cfg.UpstreamTimeout},
		slog.Default(), collector, cfg.BaseURL, cfg.SiteName,
	)
	service := factcheck.NewService(st.subjects, st.verdicts, gateway, factcheck.Settings{
		Enabled:           cfg.Enabled,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		WebSearchCount:    cfg.WebSearchCount,
		SearchContextSize: cfg.SearchContextSize,
	}, collector, slog.Default())

	// 4. ミドルウェア
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitVerify),
		slog.Default(),
	)
	defer rateLimiter.Stop()

	var frameAncestors []string
	if cfg.CORSAllowedOrigin != "" && cfg.CORSAllowedOrigin != cfg.BaseURL {
		frameAncestors = append(frameAncestors, cfg.CORSAllowedOrigin)
	}

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Service:       service,
		TokenIssuer:   middleware.NewTokenIssuer(cfg.AuthTokenSecret),
		RateLimiter:   rateLimiter,
		HealthChecker: st.healthChecker(),
		Metrics:       metrics.Handler(registry),
		Logger:        slog.Default(),
		Widget: handler.WidgetConfig{
			ThemeMode: cfg.ThemeMode,
			Colors:    cfg.Colors,
			SiteName:  cfg.SiteName,
		},
		AdminToken:        cfg.AdminToken,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		FrameAncestors:    frameAncestors,
	})

	// 6. HTTPサーバーの起動
	// WriteTimeoutは検証リクエストの上流呼び出しを打ち切らないよう上流タイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// FEED_URLSのフィードから記事を取り込み、CACHE_PRUNE_INTERVALが設定されていれば
// 期限切れのキャッシュ行を定期削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("worker requires DATABASE_URL")
	}

	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, storeConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリとセキュリティサービスの初期化
	subjectRepo := repository.NewPostgresSubjectRepo(db)
	feedRepo := repository.NewPostgresFeedSourceRepo(db)
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewContentSanitizer()
	registry, collector := newMetrics()

	// 3. 取り込みパイプラインの初期化
	subjectImporter := importer.NewSubjectImporter(subjectRepo, sanitizer, slog.Default())
	fetcher := importer.NewFetcher(feedRepo, subjectImporter, urlGuard, collector, slog.Default(), importer.FetcherConfig{
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.FetchMaxSize,
		Interval:    cfg.FetchInterval,
	})

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("feed_count", len(cfg.FeedURLs)),
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.Duration("cache_prune_interval", cfg.CachePruneInterval),
	)

	// 4. 運用エンドポイント（ヘルスチェックとメトリクス）
	opsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewOpsRouter(db, metrics.Handler(registry), slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		opsServer.Shutdown(shutdownCtx)
	}()

	// 5. キャッシュ削除ジョブ（PostgreSQLストアでのみ有効）
	if cfg.CachePruneInterval > 0 && cfg.ResultStore == config.StorePostgres {
		go cleanup.NewCleanupJob(db, slog.Default()).Start(ctx, cfg.CachePruneInterval)
	}

	// 6. 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	// サイトのURLが指定されている場合はフィードURLに解決してから登録する
	if len(cfg.FeedURLs) == 0 {
		slog.Warn("FEED_URLS is empty; importer is idle")
		<-ctx.Done()
	} else {
		if err := security.ValidateURLs(urlGuard, cfg.FeedURLs); err != nil {
			slog.Warn("FEED_URLS contains blocked URLs", slog.String("error", err.Error()))
		}
		discoverer := importer.NewDiscoverer(urlGuard, cfg.FetchTimeout, cfg.FetchMaxSize, slog.Default())
		feedURLs := discoverer.ResolveAll(ctx, cfg.FeedURLs)
		scheduler := importer.NewScheduler(feedRepo, fetcher, slog.Default(), feedURLs, cfg.FetchMaxConcurrent)
		if err := scheduler.Start(ctx, cfg.FetchInterval); err != nil {
			return err
		}
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
