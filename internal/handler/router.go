package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/factcheck/internal/middleware"
)

// FactCheckService はルーターに登録する全ハンドラーが使うサービスの集合。
type FactCheckService interface {
	VerifyServiceInterface
	WidgetServiceInterface
	AdminServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Service       FactCheckService
	TokenIssuer   *middleware.TokenIssuer
	RateLimiter   *middleware.RateLimiter
	HealthChecker HealthChecker
	Metrics       http.Handler
	Logger        *slog.Logger

	Widget            WidgetConfig
	AdminToken        string
	CORSAllowedOrigin string
	FrameAncestors    []string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
// レート制限のキーは接続元アドレスとし、X-Forwarded-For等のクライアント申告ヘッダーは信用しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.FrameAncestors...))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	verifyHandler := NewVerifyHandler(deps.Service, deps.TokenIssuer, deps.Logger)
	widgetHandler := NewWidgetHandler(deps.Service, deps.Widget, deps.Logger)
	adminHandler := NewAdminHandler(deps.Service)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// --- 公開エンドポイント ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/token", verifyHandler.Token)
		r.Get("/subjects/{id}/widget", widgetHandler.Widget)

		// POST /verify - 検証専用のレート制限とトークン検証を追加
		r.With(
			deps.RateLimiter.VerifyMiddleware(),
			deps.TokenIssuer.Middleware(),
		).Post("/verify", verifyHandler.Verify)
	})

	// --- 管理エンドポイント ---
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))

		r.Put("/subjects/{id}", adminHandler.PutSubject)
		r.Post("/test-connection", adminHandler.TestConnection)
	})

	return r
}

// NewOpsRouter はワーカープロセス用の運用エンドポイント（/health, /metrics）のみを持つルーターを返す。
func NewOpsRouter(checker HealthChecker, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Get("/health", NewHealthHandler(checker, logger))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}
