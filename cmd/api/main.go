// Package main はAPIサーバーとワーカーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/assignment"
	"github.com/yourusername/wordnest/internal/auth"
	"github.com/yourusername/wordnest/internal/badges"
	"github.com/yourusername/wordnest/internal/blanks"
	"github.com/yourusername/wordnest/internal/config"
	"github.com/yourusername/wordnest/internal/jobs"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/logging"
	"github.com/yourusername/wordnest/internal/metrics"
	"github.com/yourusername/wordnest/internal/profile"
	"github.com/yourusername/wordnest/internal/storage"
	"github.com/yourusername/wordnest/internal/story"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// application はサブコマンド間で共有する依存関係です。
type application struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *learning.Store
	badges *badges.Service
}

// bootstrap は設定・ロガー・データベースを初期化します。
func bootstrap(ctx context.Context) (*application, error) {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	db, err := learning.Shared(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := learning.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store := learning.NewStore(db)
	return &application{
		cfg:    cfg,
		logger: logger,
		store:  store,
		badges: badges.NewService(store),
	}, nil
}

func runMigrate(ctx context.Context) error {
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.logger.Sync() //nolint:errcheck
	app.logger.Info("Database migrated", zap.String("driver", app.cfg.DatabaseDriver))
	return nil
}

func runWorker(ctx context.Context) error {
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.logger.Sync() //nolint:errcheck

	js, err := setupJobs(ctx, app)
	if err != nil {
		return err
	}
	js.manager.StartWorkers()
	app.logger.Info("Workers started", zap.Int("concurrency", app.cfg.WorkerConcurrency))

	<-ctx.Done()
	app.logger.Info("Shutting down workers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return js.close(shutdownCtx)
}

func runServe(ctx context.Context) error {
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.logger.Sync() //nolint:errcheck

	js, err := setupJobs(ctx, app)
	if err != nil {
		return err
	}
	js.manager.StartWorkers()

	files, err := storage.New(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	// Ginのモードを設定
	gin.SetMode(app.cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(app.logger), metrics.Middleware())

	// セッションストアの設定（クッキー署名鍵は必須）
	sessionStore := cookie.NewStore([]byte(app.cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   app.cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(app.cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, app, js, files)

	srv := &http.Server{
		Addr:              ":" + app.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Starting API server", zap.String("addr", srv.Addr), zap.String("mode", app.cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			app.logger.Error("API server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.logger.Info("Shutting down API server")
	return errors.Join(srv.Shutdown(shutdownCtx), js.close(shutdownCtx))
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "wordnest-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, app *application, js *jobSupport, files storage.Storage) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authManager := auth.NewManager(app.store)
	storySvc := story.NewService(app.store, js.generator, app.badges, app.logger)
	assignmentSvc := assignment.NewService(app.store, app.badges, app.logger)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/register", authManager.Register)
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			protected.POST("/blanks", blanks.Handler)

			protected.POST("/jobs/translation", jobs.SubmitTranslationHandler(js.submitter))
			protected.POST("/jobs/story", jobs.SubmitStoryHandler(js.submitter))
			protected.GET("/jobs/:id", jobs.StatusHandler(js.store))
			protected.GET("/jobs/:id/events", jobs.EventsHandler(js.store, js.publisher))

			story.NewHandler(storySvc, app.store).Register(protected)
			profile.NewHandler(app.store, files, app.badges, app.cfg.MaxAvatarBytes, app.logger).Register(protected)
			assignment.Register(protected, assignmentSvc, authManager)
		}
	}
}
