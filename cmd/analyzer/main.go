package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/chart_agent/internal/api"
	"github.com/dgnsrekt/chart_agent/internal/config"
	"github.com/dgnsrekt/chart_agent/internal/relay"
	"github.com/dgnsrekt/chart_agent/internal/userstore"
	"github.com/dgnsrekt/chart_agent/internal/vision"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load analyzer config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("analyzer config loaded",
		"bind_addr", cfg.BindAddr,
		"model", cfg.ModelName,
		"daily_limit", cfg.DailyLimit,
		"model_timeout_ms", cfg.ModelTimeoutMS,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx := context.Background()

	users, err := userstore.New(ctx, cfg.DatabaseURL, cfg.DailyLimit)
	if err != nil {
		slog.Error("failed to open user store", "error", err)
		os.Exit(1)
	}
	defer users.Close()

	model, err := vision.New(ctx, cfg.GeminiAPIKey, cfg.ModelName, time.Duration(cfg.ModelTimeoutMS)*time.Millisecond)
	if err != nil {
		slog.Error("failed to init vision model", "model", cfg.ModelName, "error", err)
		os.Exit(1)
	}
	defer func() { _ = model.Close() }()

	broker := relay.NewBroker()
	h := api.NewServer(model, users, broker, int64(cfg.MaxUploadMB)<<20)

	srv := &http.Server{Addr: cfg.BindAddr, Handler: h}

	go func() {
		slog.Info("analyzer listening", "addr", cfg.BindAddr, "docs", "http://"+cfg.BindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("analyzer server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("analyzer shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
