package config

import (
	"strings"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
)

// DefaultAPIBaseURL is the fixed analyzer endpoint used when no override
// is configured. An ANALYZER_API_URL environment value takes precedence.
const DefaultAPIBaseURL = "https://ai-chart-analyzer-api.fly.dev"

// ClientConfig holds configuration for the signal client.
type ClientConfig struct {
	APIBaseURL       string
	QuotaMarkers     []string
	NtfyEndpoint     string
	RequestTimeoutMS int
	PreviewDir       string
	LogLevel         string
	LogFile          string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	loadDotenv()

	cfg := &ClientConfig{
		APIBaseURL:       getEnvOrDefault("ANALYZER_API_URL", DefaultAPIBaseURL),
		QuotaMarkers:     analyze.DefaultQuotaMarkers(),
		NtfyEndpoint:     getEnvOrDefault("SIGNAL_NTFY_ENDPOINT", ""),
		RequestTimeoutMS: getEnvIntOrDefault("ANALYZER_REQUEST_TIMEOUT_MS", 90000),
		PreviewDir:       getEnvOrDefault("SIGNAL_PREVIEW_DIR", "./previews"),
		LogLevel:         strings.ToLower(getEnvOrDefault("SIGNAL_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("SIGNAL_LOG_FILE", "logs/signal.log"),
	}

	if raw := getEnvOrDefault("ANALYZER_QUOTA_MARKERS", ""); raw != "" {
		cfg.QuotaMarkers = splitList(raw)
	}
	if cfg.RequestTimeoutMS < 1000 {
		cfg.RequestTimeoutMS = 1000
	}
	return cfg, nil
}
