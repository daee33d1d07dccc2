package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer
	HealthChecker HealthChecker

	// Callable APIの認証とレート制限
	JWTSecret   []byte
	RateLimiter *middleware.RateLimiter

	WebhookProcessor    WebhookProcessor
	WebhookMaxBodyBytes int64

	PaymentService PaymentServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → (Callableのみ) Auth → RateLimit
//
// Webhookは署名で認証するためAuthの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	webhookHandler := NewWebhookHandler(deps.WebhookProcessor, deps.WebhookMaxBodyBytes, deps.Logger)
	r.Post("/webhooks/stripe", webhookHandler.Receive)

	paymentHandler := NewPaymentHandler(deps.PaymentService, deps.Logger)
	r.Route("/api/payments", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.JWTSecret, deps.Logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Post("/create-intent", paymentHandler.CreateIntent)
		r.Post("/confirm-intent", paymentHandler.ConfirmIntent)
	})

	return r
}

// NewWorkerRouter はワーカープロセス用に/healthと/metricsのみを公開するルーターを返す。
func NewWorkerRouter(logger *slog.Logger, checker HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))

	r.Get("/health", NewHealthHandler(checker))
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}
	return r
}
