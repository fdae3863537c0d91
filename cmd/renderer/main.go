// Package main is the entry point for the renderer service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/config"
	"github.com/cardbridge/stream-renderer/internal/events"
	"github.com/cardbridge/stream-renderer/internal/handler"
	"github.com/cardbridge/stream-renderer/internal/middleware"
	natsclient "github.com/cardbridge/stream-renderer/internal/nats"
	"github.com/cardbridge/stream-renderer/internal/renderer"
	"github.com/cardbridge/stream-renderer/internal/runtime"
	"github.com/cardbridge/stream-renderer/internal/sink"
	"github.com/cardbridge/stream-renderer/pkg/logger"
	"github.com/cardbridge/stream-renderer/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting renderer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "stream-renderer", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	natsClient, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	renderSink, err := sink.NewHTTPSink(cfg.SinkURL, cfg.SinkToken, cfg.SinkTimeout)
	if err != nil {
		log.Error("failed to create render sink", zap.Error(err))
		os.Exit(1)
	}

	runtimeClient := runtime.NewNATSClient(natsClient)

	coordinator := renderer.New(renderSink, runtimeClient, renderer.Options{
		FlushDebounce:    cfg.FlushDebounce,
		ComponentBudget:  cfg.ComponentBudget,
		SegmentRetention: cfg.SegmentRetention,
		ToolOutputClip:   cfg.ToolOutputClip,
		PermissionTTL:    cfg.PermissionTTL,
	}, log)

	pump := events.NewPump(natsClient, coordinator, log)
	if err := pump.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure event stream", zap.Error(err))
		os.Exit(1)
	}
	go func() {
		if err := pump.Run(ctx); err != nil {
			log.Error("event pump stopped", zap.Error(err))
		}
	}()

	healthHandler := handler.NewHealthHandler(natsClient)
	opsHandler := handler.NewOpsHandler(coordinator, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", opsHandler.Bind)
			r.Get("/", opsHandler.List)

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", opsHandler.Inspect)
				r.Delete("/", opsHandler.Drop)

				r.Post("/undo", opsHandler.Undo)
				r.Post("/abort", opsHandler.Abort)
				r.Post("/permission", opsHandler.RespondPermission)

				r.Get("/question", opsHandler.Question)
				r.Post("/question/page", opsHandler.NextQuestionPage)
				r.Post("/question/answer", opsHandler.AnswerQuestion)
				r.Post("/question/skip", opsHandler.SkipQuestion)
				r.Post("/question/reject", opsHandler.RejectQuestion)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.AdminPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("ops server listening", zap.String("port", cfg.AdminPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("stopped")
}
