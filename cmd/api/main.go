package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/api"
	"github.com/stagepass/seat-reservation/internal/api/handler"
	custommw "github.com/stagepass/seat-reservation/internal/api/middleware"
	"github.com/stagepass/seat-reservation/internal/application"
	"github.com/stagepass/seat-reservation/internal/config"
	"github.com/stagepass/seat-reservation/internal/domain/payment"
	"github.com/stagepass/seat-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/stagepass/seat-reservation/internal/infrastructure/redis"
	"github.com/stagepass/seat-reservation/internal/infrastructure/stripegw"
	"github.com/stagepass/seat-reservation/internal/notifier"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
	"github.com/stagepass/seat-reservation/internal/pkg/metrics"
	"github.com/stagepass/seat-reservation/internal/worker"
)

func main() {
	// .env があれば読み込む（本番では環境変数を直接使う）
	_ = godotenv.Load()

	cfg := config.Load()
	defer logger.Sync()

	m := metrics.Init()

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisinfra.Ping(ctx, redisClient); err != nil {
		logger.Fatal("Redis接続に失敗", zap.Error(err))
	}

	// リポジトリ
	txManager := postgres.NewTxManager(db)
	seatRepo := postgres.NewSeatRepository(db)
	holdRepo := postgres.NewHoldRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	paymentRepo := postgres.NewPaymentAttemptRepository(db)

	// 座席イベント配信（プロセス内ハブ + Redis Pub/Sub ブリッジ）
	hub := notifier.NewHub()
	eventBridge := redisinfra.NewEventBridge(redisClient, hub)
	go func() {
		if err := eventBridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("座席イベント購読が停止", zap.Error(err))
		}
	}()

	lockManager := redisinfra.NewLockManager(redisClient)
	seatCache := redisinfra.NewSeatCache(redisClient)

	// アプリケーションサービス
	holdService := application.NewHoldService(
		txManager, holdRepo, seatRepo, bookingRepo,
		application.WithHoldTTL(cfg.Hold.TTL),
		application.WithLockManager(lockManager, cfg.Hold.LockTTL),
		application.WithSeatCache(seatCache),
		application.WithPublisher(eventBridge),
		application.WithMetrics(m),
		application.WithSweepBatchSize(cfg.Hold.SweepBatchSize),
	)
	seatService := application.NewSeatService(seatRepo, seatCache)
	rulesService := application.NewRulesService(seatRepo, &cfg.Rules)

	// 決済（キー未設定なら決済開始はエラーを返す）
	var gateway payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gw, err := stripegw.New(&cfg.Stripe)
		if err != nil {
			logger.Fatal("決済ゲートウェイの初期化に失敗", zap.Error(err))
		}
		gateway = gw
	} else {
		logger.Warn("STRIPE_SECRET_KEY が未設定のため決済は無効です")
	}
	paymentService := application.NewPaymentService(
		holdService, paymentRepo, seatRepo, gateway, cfg.Stripe.Currency, m,
	)
	webhookVerifier := stripegw.NewVerifier(cfg.Stripe.WebhookSecret)

	// 期限切れホールドのスイーパー
	sweeper := worker.NewExpiredHoldSweeper(holdService, cfg.Hold.SweepInterval)
	go sweeper.Start(ctx)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	// ハンドラー
	holdHandler := handler.NewHoldHandler(holdService, rulesService)
	seatHandler := handler.NewSeatHandler(seatService, rulesService)
	paymentHandler := handler.NewPaymentHandler(paymentService, webhookVerifier)
	eventsHandler := handler.NewEventsHandler(hub)
	healthHandler := handler.NewHealthHandler()

	// ルーティング
	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/shows/:show_id/holds", holdHandler.Create)
	v1.GET("/holds/:id", holdHandler.GetByID)
	v1.POST("/holds/:id/renew", holdHandler.Renew)
	v1.DELETE("/holds/:id", holdHandler.Release)

	v1.POST("/shows/:show_id/seats/bulk", seatHandler.CreateBulk)
	v1.GET("/shows/:show_id/seats", seatHandler.ListByShow)
	v1.GET("/shows/:show_id/seats/count", seatHandler.CountAvailable)
	v1.POST("/shows/:show_id/seats/validate", seatHandler.ValidateSelection)
	v1.GET("/seats/:id", seatHandler.GetByID)

	v1.POST("/holds/:id/payment", paymentHandler.Begin)
	v1.POST("/payments/webhook", paymentHandler.Webhook)

	v1.GET("/shows/:show_id/events", eventsHandler.Stream)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	// サーバー起動
	// WriteTimeout は SSE の長時間接続を切断してしまうため設定しない
	e.Server.ReadTimeout = cfg.Server.ReadTimeout

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()
	logger.Info("サーバー起動", zap.String("port", cfg.Server.Port))

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています")

	sweeper.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
