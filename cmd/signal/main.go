// Command signal submits one chart image to the analyzer and prints the
// trading signal. The image comes from a file or from a live screenshot
// of a chart tab in a running browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
	"github.com/dgnsrekt/chart_agent/internal/attempt"
	"github.com/dgnsrekt/chart_agent/internal/capture"
	"github.com/dgnsrekt/chart_agent/internal/config"
	"github.com/dgnsrekt/chart_agent/internal/identity"
	"github.com/dgnsrekt/chart_agent/internal/notify"
	"github.com/dgnsrekt/chart_agent/internal/preview"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	filePath := flag.String("file", "", "chart image to analyze")
	useCapture := flag.Bool("capture", false, "screenshot a chart tab from the running browser instead of reading a file")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("failed to load client config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	if *filePath == "" && !*useCapture {
		fmt.Fprintln(os.Stderr, "usage: signal -file chart.png | signal -capture")
		os.Exit(2)
	}

	ctx := context.Background()

	bridge := selectBridge()
	bridge.Ready()
	bridge.Expand()

	input, err := loadInput(ctx, *filePath, *useCapture)
	if err != nil {
		slog.Error("failed to load chart image", "error", err)
		os.Exit(1)
	}

	previews, err := preview.NewStore(cfg.PreviewDir)
	if err != nil {
		slog.Error("failed to open preview store", "error", err)
		os.Exit(1)
	}

	client := analyze.NewClient(cfg.APIBaseURL, &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
	})
	classifier := analyze.NewClassifier(cfg.QuotaMarkers)

	updates := make(chan attempt.Snapshot, 8)
	ctrl := attempt.NewController(client, bridge, previews, classifier,
		attempt.WithListener(func(s attempt.Snapshot) { updates <- s }))

	if err := ctrl.Select(input); err != nil {
		slog.Error("image rejected", "error", err)
		os.Exit(1)
	}
	if err := ctrl.Submit(ctx); err != nil && err != attempt.ErrInFlight {
		slog.Debug("submit short-circuited", "error", err)
	}

	for snap := range updates {
		switch snap.State {
		case attempt.StateSucceeded:
			printResult(snap.Result)
			ctrl.Reset()
			os.Exit(0)
		case attempt.StateFailed:
			fmt.Fprintln(os.Stderr, snap.Message)
			if snap.Prominent {
				raiseAlert(ctx, cfg, bridge, snap.Message)
			}
			ctrl.Reset()
			os.Exit(1)
		}
	}
}

func selectBridge() identity.Bridge {
	if raw := os.Getenv("TG_INIT_DATA"); raw != "" {
		return identity.InitDataBridge{Raw: raw}
	}
	if raw := os.Getenv("SIGNAL_TG_ID"); raw != "" {
		var id int64
		if _, err := fmt.Sscanf(raw, "%d", &id); err == nil {
			return identity.StaticBridge{ID: id}
		}
	}
	return identity.NoopBridge{}
}

func loadInput(ctx context.Context, filePath string, useCapture bool) (analyze.Input, error) {
	if useCapture {
		capCfg, err := config.LoadCapture()
		if err != nil {
			return analyze.Input{}, err
		}
		client := capture.NewClient(capCfg.CDPURL(), capCfg.TabURLFilter, time.Duration(capCfg.EvalTimeoutMS)*time.Millisecond)
		data, err := client.Screenshot(ctx)
		if err != nil {
			return analyze.Input{}, err
		}
		return analyze.Input{Name: "chart.png", MIME: "image/png", Data: data}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return analyze.Input{}, err
	}
	return analyze.Input{
		Name: filePath,
		MIME: http.DetectContentType(data),
		Data: data,
	}, nil
}

func printResult(res *analyze.Result) {
	fmt.Printf("signal: %s\n", res.Signal)
	fmt.Printf("expiry: %d min\n", res.ExpiryMinutes)
	fmt.Printf("reasoning: %s\n", res.Reasoning)
	if res.RemainingLimit != nil {
		fmt.Printf("remaining today: %d\n", *res.RemainingLimit)
	}
}

func raiseAlert(ctx context.Context, cfg *config.ClientConfig, bridge identity.Bridge, message string) {
	if err := bridge.ShowAlert(ctx, message); err != nil {
		slog.Debug("host alert failed", "error", err)
	}
	if cfg.NtfyEndpoint == "" {
		return
	}
	if err := notify.SendAlert(ctx, nil, cfg.NtfyEndpoint, "chart analyzer", message); err != nil {
		slog.Debug("ntfy alert failed", "error", err)
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

	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
