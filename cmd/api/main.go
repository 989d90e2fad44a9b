package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/parley-ai/parley/backend/internal/config"
	"github.com/parley-ai/parley/backend/internal/handler"
	"github.com/parley-ai/parley/backend/internal/service/ai"
	"github.com/parley-ai/parley/backend/internal/service/asr"
	"github.com/parley-ai/parley/backend/internal/service/transcription"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "parley",
	})

	if err := godotenv.Load(); err != nil {
		logger.Warn("failed to load .env file, continuing with system environment", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err)
	}

	if level, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("unknown LOG_LEVEL, using info", "value", cfg.Server.LogLevel)
	}

	dialer, err := asr.NewDialer(cfg.Transcription, logger.WithPrefix("asr"))
	if err != nil {
		logger.Fatal("failed to build transcription dialer", "err", err)
	}
	if !cfg.Transcription.Enabled() {
		logger.Warn("transcription provider credentials missing, /connect will answer 503", "provider", cfg.Transcription.Provider)
	}

	registry := transcription.NewRegistry(dialer, transcription.Options{
		SessionTimeout:   cfg.Transcription.SessionTimeout,
		SweepMinInterval: cfg.Transcription.SweepMinInterval,
		PartialWindow:    cfg.Transcription.PartialWindow,
		Logger:           logger.WithPrefix("sessions"),
	})
	go registry.Run(ctx, cfg.Transcription.SweepInterval)
	defer registry.CloseAll()

	transcriptionService := transcription.NewService(registry)

	services := handler.Services{
		Transcription: transcriptionService,
		Conversations: transcriptionService,
		Logger:        logger,
	}

	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, logger.WithPrefix("coach"))
		if err != nil {
			logger.Warn("failed to initialize AI service, continuing without coaching", "err", err)
		} else {
			services.Coach = aiService
			logger.Info("AI service initialized", "model", cfg.AI.Model, "stream", cfg.AI.StreamResponse)
		}
	} else {
		logger.Info("Ark credentials not configured, skipping coaching")
	}

	startServer(ctx, cfg.Server, handler.NewRouter(services), logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *log.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("parley backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
