package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"uniformcheck/internal/check"
	"uniformcheck/internal/config"
	"uniformcheck/internal/httpapi"
	"uniformcheck/internal/httpmiddleware"
	"uniformcheck/internal/imagestore"
	"uniformcheck/internal/logging"
	"uniformcheck/internal/queue"
	"uniformcheck/internal/report"
	"uniformcheck/internal/session"
	"uniformcheck/internal/store"
	"uniformcheck/internal/vision"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	checkRepo := check.NewRepository(db.Client)
	if err := checkRepo.EnsureSchema(ctx); err != nil {
		return err
	}
	reportRepo := report.NewRepository(db.Client)

	references, err := imagestore.LoadReferences(cfg.ReferenceMap)
	if err != nil {
		return err
	}
	images, err := imagestore.New(cfg.UploadDir, cfg.ReferenceDir, references)
	if err != nil {
		return err
	}

	visionClient := vision.New(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel, cfg.VisionTimeout, cfg.VisionSkip)
	if cfg.VisionSkip {
		logger.Warn("vision skip mode enabled, classifications are mocked")
	}

	var sessions session.Store
	if cfg.SessionBackend == "memory" {
		sessions = session.NewMemory(cfg.SessionTTL)
	} else {
		sessions = session.NewRedis(redisClient.Client, cfg.SessionTTL)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "uniform:violations")
	}

	pipeline := check.NewPipeline(checkRepo, images, visionClient, visionClient, q, cfg.VerifyFailOpen, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	r.MaxMultipartMemory = httpapi.MaxUploadSize

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	httpapi.RegisterRoutes(r, httpapi.Deps{
		Pipeline:        pipeline,
		Students:        checkRepo,
		Reports:         reportRepo,
		Sessions:        sessions,
		Logger:          logger,
		JWTIssuer:       cfg.JWTIssuer,
		JWTSigningKey:   cfg.JWTSigningKey,
		KioskTTL:        cfg.AccessTTL,
		TeacherUsername: cfg.TeacherUsername,
		TeacherPassword: cfg.TeacherPassword,
	})

	r.Static("/static", "static")

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // vision calls run inside the request
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Session-Token")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
