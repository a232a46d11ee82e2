package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"carbontracker/internal/config"
	"carbontracker/internal/db"
	"carbontracker/internal/http/handlers"
	appmw "carbontracker/internal/http/middleware"
	"carbontracker/internal/logging"
	"carbontracker/internal/recommend"
	"carbontracker/internal/report"
	"carbontracker/internal/upload"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.InsecureJWTSecret() {
		logger.Warn("APP_JWT_SECRET is unset; tokens are signed with the development placeholder")
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}

	if err := db.EnsureBootstrapUser(sqlDB, cfg); err != nil {
		logger.Fatal("failed to ensure bootstrap user", zap.Error(err))
	}

	workers, err := db.StartWorkers(sqlDB, cfg, logger.Named("workers"))
	if err != nil {
		logger.Fatal("failed to start background workers", zap.Error(err))
	}

	handlers.InitPrometheusMetrics()

	uploads := upload.NewService(sqlDB, recommend.NewEngine(logger.Named("recommend")), logger.Named("upload"))
	reader := report.NewReader(sqlDB)

	r := router.New()
	r.SaveMatchedRoutePath = true

	// Global middleware chain: request logger, then request metrics, then router
	handler := appmw.RequestLogger(logger.Named("http"))(
		appmw.RequestMetrics(prometheus.DefaultRegisterer)(r.Handler))
	requireUser := appmw.JWTAuth(cfg)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler())

	r.POST("/api/auth/signup", handlers.Signup(sqlDB, cfg, logger))
	r.POST("/api/auth/login", handlers.Login(sqlDB, cfg, logger))
	r.POST("/api/auth/logout", handlers.Logout())

	r.POST("/api/aws-tracker", requireUser(handlers.UploadHandler(uploads, cfg, logger)))
	r.GET("/api/aws-tracker", requireUser(handlers.TrackerData(reader, logger)))
	r.DELETE("/api/aws-tracker", requireUser(handlers.DeleteData(reader, logger)))
	r.POST("/api/aws-tracker/recommendations/{id}/dismiss", requireUser(handlers.DismissRecommendation(sqlDB)))

	server := &fasthttp.Server{
		Handler: handler,
		Name:    "carbontracker",
		// multipart framing on top of the largest accepted file
		MaxRequestBodySize: cfg.MaxUploadBytes + 1<<20,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		<-workers.Stop().Done()
		if err := server.Shutdown(); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("carbontracker listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
