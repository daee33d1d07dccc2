package app

import (
	"context"
	"database/sql"
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

	"github.com/hitoshi/coachnotify/internal/changefeed"
	"github.com/hitoshi/coachnotify/internal/compose"
	"github.com/hitoshi/coachnotify/internal/config"
	"github.com/hitoshi/coachnotify/internal/database"
	"github.com/hitoshi/coachnotify/internal/dispatch"
	"github.com/hitoshi/coachnotify/internal/handler"
	"github.com/hitoshi/coachnotify/internal/logger"
	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/middleware"
	"github.com/hitoshi/coachnotify/internal/payment"
	"github.com/hitoshi/coachnotify/internal/push"
	"github.com/hitoshi/coachnotify/internal/recipient"
	"github.com/hitoshi/coachnotify/internal/repository"
	"github.com/hitoshi/coachnotify/internal/security"
	"github.com/hitoshi/coachnotify/internal/trigger"
	"github.com/hitoshi/coachnotify/internal/worker/cleanup"
	"github.com/hitoshi/coachnotify/internal/worker/reminder"
)

// dbMaxOpenConns はプロセスあたりのDB接続数の上限。
const dbMaxOpenConns = 25

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	l := logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, l, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("time_zone", cfg.TimeZone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, l)
	case CommandMigrate:
		return runMigrate(cfg, l)
	default:
		return runServe(ctx, cfg, l)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, dbMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はプロセス用のPrometheusレジストリとコレクタを生成する。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.NewCollector(reg)
}

// notifier は通知の組み立てから配信までの共通部品。
type notifier struct {
	resolver   *recipient.Resolver
	composer   *compose.Composer
	dispatcher *dispatch.Dispatcher
}

// newNotifier はFCM送信を含む通知パイプラインを構築する。
func newNotifier(ctx context.Context, cfg *config.Config, db *sql.DB, l *slog.Logger, mc metrics.MetricsCollector) (*notifier, error) {
	sender, err := push.NewFCMSender(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize push sender: %w", err)
	}

	userRepo := repository.NewPostgresUserRepo(db)
	resolver := recipient.NewResolver(userRepo, l)
	composer := compose.NewComposer(security.NewTextSanitizer(), cfg.Location(), time.Now)
	dispatcher := dispatch.NewDispatcher(resolver, userRepo, sender, l, mc)

	return &notifier{
		resolver:   resolver,
		composer:   composer,
		dispatcher: dispatcher,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// Webhookと決済インテントのCallable APIを公開する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	l.Info("database connection established")

	// 2. メトリクスと通知パイプライン
	reg, mc := newRegistry()
	n, err := newNotifier(ctx, cfg, db, l, mc)
	if err != nil {
		return err
	}

	// 3. 決済
	processor := payment.NewProcessor(
		payment.NewStripeVerifier(cfg.StripeWebhookSecret),
		repository.NewPostgresSessionPackageRepo(db),
		repository.NewPostgresPaymentHistoryRepo(db),
		n.composer,
		n.dispatcher,
		l,
		mc,
	)
	paymentService := payment.NewService(payment.NewStripeIntents(cfg.StripeSecretKey), l)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitCallable), l)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:              l,
		Metrics:             mc,
		Gatherer:            reg,
		HealthChecker:       db,
		JWTSecret:           []byte(cfg.JWTSecret),
		RateLimiter:         rateLimiter,
		WebhookProcessor:    processor,
		WebhookMaxBodyBytes: cfg.WebhookMaxBodyBytes,
		PaymentService:      paymentService,
	})

	return serveHTTP(ctx, l, &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
}

// serveHTTP はctxがキャンセルされるまでサーバーを動かし、その後シャットダウンする。
func serveHTTP(ctx context.Context, l *slog.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		l.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 変更フィードのリスナーとスケジュールジョブを動かし、/healthと/metricsを公開する。
func runWorker(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	l.Info("database connection established (worker)")

	// 2. メトリクスと通知パイプライン
	reg, mc := newRegistry()
	n, err := newNotifier(ctx, cfg, db, l, mc)
	if err != nil {
		return err
	}

	// 3. トリガーハンドラの登録
	platform := changefeed.NewRuntime(changefeed.NewRegistry(l), cfg.Location(), l)
	handlers := trigger.NewHandlers(
		n.resolver, n.composer, n.dispatcher,
		repository.NewPostgresConversationRepo(db), l, mc,
	)
	handlers.Register(platform)

	// 4. スケジュールジョブの登録
	sessionJob := reminder.NewSessionJob(repository.NewPostgresSessionRepo(db), n.resolver, n.composer, n.dispatcher, l, mc)
	workoutJob := reminder.NewWorkoutJob(repository.NewPostgresWorkoutRepo(db), n.composer, n.dispatcher, cfg.Location(), l, mc)
	changeRepo := repository.NewPostgresChangeRepo(db)
	cleanupJob := cleanup.NewCleanupJob(changeRepo, l, cfg.ChangeRetentionDays)

	schedules := []struct {
		schedule string
		job      changefeed.Job
	}{
		{cfg.SessionReminderSchedule, sessionJob.Run},
		{cfg.WorkoutReminderSchedule, workoutJob.Run},
		{cfg.CleanupSchedule, func(ctx context.Context) {
			if err := cleanupJob.Run(ctx); err != nil {
				l.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}},
	}
	for _, s := range schedules {
		if err := platform.OnSchedule(s.schedule, s.job); err != nil {
			return fmt.Errorf("failed to register schedule: %w", err)
		}
	}

	// 5. 変更フィードのリスナー
	pqListener, err := changefeed.NewPQListener(cfg.DatabaseURL, cfg.FeedChannel, l)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.FeedChannel, err)
	}
	defer pqListener.Close()

	listener := changefeed.NewListener(
		changeRepo, platform.Registry(), l, mc,
		cfg.FeedMaxConcurrent, cfg.FeedBatchSize, cfg.FeedPollInterval,
	)

	platform.Start()

	l.Info("worker starting",
		slog.String("channel", cfg.FeedChannel),
		slog.Int("max_concurrent", cfg.FeedMaxConcurrent),
		slog.String("session_reminder_schedule", cfg.SessionReminderSchedule),
		slog.String("workout_reminder_schedule", cfg.WorkoutReminderSchedule),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewWorkerRouter(l, db, reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	serveErr := superviseWorker(ctx,
		func(ctx context.Context) { listener.Run(ctx, pqListener.Notify) },
		func(ctx context.Context) error { return serveHTTP(ctx, l, server) },
	)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	platform.Stop(stopCtx)

	if serveErr != nil {
		l.Error("worker stopped with HTTP server error", slog.String("error", serveErr.Error()))
		return serveErr
	}
	l.Info("worker stopped gracefully")
	return nil
}

// superviseWorker はlistenを別goroutineで動かしながらserveを実行する。
// serveが戻った時点でlistenのctxもキャンセルし、listenの終了を待ってからserveの結果を返す。
func superviseWorker(ctx context.Context, listen func(context.Context), serve func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		listen(ctx)
	}()

	err := serve(ctx)
	cancel()
	<-listenerDone
	return err
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, l *slog.Logger) error {
	l.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	l.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
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
