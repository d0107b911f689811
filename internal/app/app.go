// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
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
	"golang.org/x/time/rate"

	"github.com/NodirbekRare/famestate/internal/compose"
	"github.com/NodirbekRare/famestate/internal/config"
	"github.com/NodirbekRare/famestate/internal/database"
	"github.com/NodirbekRare/famestate/internal/extract"
	"github.com/NodirbekRare/famestate/internal/handler"
	"github.com/NodirbekRare/famestate/internal/logger"
	"github.com/NodirbekRare/famestate/internal/metrics"
	"github.com/NodirbekRare/famestate/internal/middleware"
	"github.com/NodirbekRare/famestate/internal/pipeline"
	"github.com/NodirbekRare/famestate/internal/realestate"
	"github.com/NodirbekRare/famestate/internal/repository"
	"github.com/NodirbekRare/famestate/internal/security"
	"github.com/NodirbekRare/famestate/internal/validate"
	"github.com/NodirbekRare/famestate/internal/worker/cleanup"
	processpkg "github.com/NodirbekRare/famestate/internal/worker/process"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildPipeline は処理パイプラインと依存コンポーネントをワイヤリングする。
// serveモードとworkerモードの両方から使用される。
func buildPipeline(cfg *config.Config, db *sql.DB, collector *metrics.Collector) (*pipeline.Pipeline, error) {
	taskRepo := repository.NewPostgresTaskRepo(db)
	memberRepo := repository.NewPostgresMemberRepo(db)
	realEstateRepo := repository.NewPostgresRealEstateRepo(db)
	graphRepo := repository.NewPostgresFamilyGraphRepo(db)

	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.RealEstateAPIURL); err != nil {
		return nil, fmt.Errorf("invalid REAL_ESTATE_API_URL: %w", err)
	}
	sanitizer := security.NewFieldSanitizer()

	lookupClient := realestate.NewClient(
		ssrfGuard.NewSafeClient(cfg.LookupTimeout),
		slog.Default(),
		cfg.RealEstateAPIURL,
		cfg.LookupMaxBodySize,
		rate.Every(cfg.LookupInterval),
	)
	gateway := realestate.NewGateway(lookupClient, sanitizer, collector, slog.Default())

	extractor := extract.NewExtractor(cfg.MaxInputSize)
	validator := validate.NewValidator(sanitizer)
	composer := compose.NewComposer(memberRepo, realEstateRepo, cfg.ResultDir)

	return pipeline.New(
		taskRepo, extractor, validator, graphRepo, gateway,
		composer, collector, slog.Default(),
	), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスとパイプラインの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	pipe, err := buildPipeline(cfg, db, collector)
	if err != nil {
		return err
	}

	// 3. ハンドラーの構築
	familyHandler := handler.NewFamilyHandler(
		repository.NewPostgresTaskRepo(db),
		repository.NewPostgresMemberRepo(db),
		repository.NewPostgresRealEstateRepo(db),
		pipe,
		slog.Default(),
		cfg.UploadDir,
		cfg.MaxInputSize,
	)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:  db,
		RateLimiter:    rateLimiter,
		MetricsHandler: metrics.Handler(registry),
		FamilyHandler:  familyHandler,
	}, middleware.NewLoggingMiddleware(slog.Default()))

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
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
// DB接続を開き、タスク処理スケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. パイプラインの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	pipe, err := buildPipeline(cfg, db, collector)
	if err != nil {
		return err
	}

	taskRepo := repository.NewPostgresTaskRepo(db)

	// 3. スケジューラの初期化
	scheduler := processpkg.NewScheduler(
		taskRepo, pipe, slog.Default(),
		cfg.WorkerMaxConcurrent, cfg.WorkerClaimLimit,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(taskRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.TaskRetentionDays

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
		slog.Duration("interval", cfg.WorkerInterval),
		slog.Int("max_concurrent", cfg.WorkerMaxConcurrent),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 処理スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.WorkerInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
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
