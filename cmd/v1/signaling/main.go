package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/warp-lan/signaling/internal/v1/auth"
	"github.com/warp-lan/signaling/internal/v1/config"
	"github.com/warp-lan/signaling/internal/v1/health"
	"github.com/warp-lan/signaling/internal/v1/logging"
	"github.com/warp-lan/signaling/internal/v1/middleware"
	"github.com/warp-lan/signaling/internal/v1/ratelimit"
	"github.com/warp-lan/signaling/internal/v1/signaling"
	"github.com/warp-lan/signaling/internal/v1/tracing"
)

func main() {
	// Load .env for local development; in production everything comes from
	// the environment.
	_ = godotenv.Load(".env")

	cfg, err := config.ValidateEnv()
	if err != nil {
		// Logger is not up yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional tracing ---
	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, health.ServiceName, cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
			logging.Info(ctx, "Tracing initialized", zap.String("collector", cfg.OtelCollectorAddr))
		}
	}

	// --- Admission dependencies ---
	originPolicy := auth.NewOriginPolicy(auth.ParseAllowedOrigins(cfg.AllowedOrigins))
	if originPolicy.AllowAll() {
		logging.Warn(ctx, "ALLOWED_ORIGINS not set, accepting any origin (development only)")
	}

	connLimiter := ratelimit.NewConnLimiter(cfg.RateLimitWsConn, cfg.RateLimitWsWindow)
	go connLimiter.Run(ctx)

	httpLimiter, err := ratelimit.NewHTTPLimiter(cfg.RateLimitHTTP)
	if err != nil {
		logging.Fatal(ctx, "Invalid HTTP rate limit configuration", zap.Error(err))
	}

	// --- Hub ---
	hub := signaling.NewHub(originPolicy, connLimiter)
	go hub.Run(ctx)

	// --- Router ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(otelgin.Middleware(health.ServiceName))

	corsConfig := cors.DefaultConfig()
	if originPolicy.AllowAll() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = originPolicy.Origins()
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type"}
	router.Use(cors.New(corsConfig))

	router.GET("/ws", hub.ServeWs)

	healthHandler := health.NewHandler(hub, cfg.ServiceVersion)
	router.GET("/health", httpLimiter.Middleware(), healthHandler.Health)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start and wait ---
	go func() {
		logging.Info(ctx, "Signaling server starting",
			zap.String("port", cfg.Port),
			zap.String("version", cfg.ServiceVersion))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "Server failed to listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down gracefully...")

	// Cancelling the root context stops the hub (closing every outbox), the
	// connection limiter janitor, and the room expiry sweeper.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Forced shutdown", zap.Error(err))
	}

	logging.Info(context.Background(), "Server stopped")
}
