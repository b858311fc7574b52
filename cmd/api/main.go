package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physio-voice-agent/cmd/mainconfig"
	"github.com/wolfman30/physio-voice-agent/internal/api/router"
	"github.com/wolfman30/physio-voice-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/physio-voice-agent/internal/config"
	"github.com/wolfman30/physio-voice-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/physio-voice-agent/internal/http/middleware"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/physio-voice-agent/internal/session"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// app is the assembled API server and the resources it owns.
type app struct {
	server     *http.Server
	controller *session.Controller
	limiter    *httpmiddleware.RateLimiter
	redis      *redis.Client
	logger     *logging.Logger
	done       chan struct{}
}

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physio voice agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"voice_medium", cfg.VoiceMedium,
		"notification_bus", cfg.NotificationBus,
	)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	if cfg == nil {
		return nil, errors.New("api: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	bus, redisClient := bootstrap.BuildNotificationBus(ctx, cfg, logger)

	var ses notify.SESAPI
	if cfg.EmailProvider == "ses" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return nil, fmt.Errorf("api: load aws config: %w", err)
		}
		ses = sesv2.NewFromConfig(awsCfg)
	}
	sender := bootstrap.BuildEmailSender(cfg, ses, logger)

	var metricsHandler http.Handler
	var sessionMetrics session.Metrics
	if cfg.MetricsEnabled {
		sessionMetrics = metrics.NewSessionMetrics(reg)
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	controller := bootstrap.BuildSessionController(cfg, bus, sender, sessionMetrics, logger)
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	handler := router.New(&router.Config{
		Logger:             logger,
		Sessions:           handlers.NewSessionHandler(controller, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	a := &app{
		// WriteTimeout stays unset: the stream endpoint holds its
		// connection for the whole call.
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		controller: controller,
		limiter:    limiter,
		redis:      redisClient,
		logger:     logger,
		done:       make(chan struct{}),
	}
	go limiter.Run(a.done)
	return a, nil
}

// shutdown stops accepting requests, ends every live session and releases
// the Redis connection.
func (a *app) shutdown(ctx context.Context) error {
	close(a.done)
	err := a.server.Shutdown(ctx)
	a.controller.Shutdown(ctx)
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.logger.Warn("failed to close redis", "error", cerr)
		}
	}
	return err
}
