package config

import (
	"fmt"
	"strings"
)

// ServerConfig holds configuration for the analyzer service.
type ServerConfig struct {
	BindAddr       string
	DatabaseURL    string
	GeminiAPIKey   string
	ModelName      string
	DailyLimit     int
	ModelTimeoutMS int
	MaxUploadMB    int
	LogLevel       string
	LogFile        string
}

// LoadServer reads analyzer service configuration from environment
// variables. DATABASE_URL and GEMINI_API_KEY have no defaults.
func LoadServer() (*ServerConfig, error) {
	loadDotenv()

	cfg := &ServerConfig{
		BindAddr:       getEnvOrDefault("ANALYZER_BIND_ADDR", "127.0.0.1:8100"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		GeminiAPIKey:   getEnvOrDefault("GEMINI_API_KEY", ""),
		ModelName:      getEnvOrDefault("ANALYZER_MODEL", "gemini-2.0-flash"),
		DailyLimit:     getEnvIntOrDefault("ANALYZER_DAILY_LIMIT", 5),
		ModelTimeoutMS: getEnvIntOrDefault("ANALYZER_MODEL_TIMEOUT_MS", 60000),
		MaxUploadMB:    getEnvIntOrDefault("ANALYZER_MAX_UPLOAD_MB", 10),
		LogLevel:       strings.ToLower(getEnvOrDefault("ANALYZER_LOG_LEVEL", "info")),
		LogFile:        getEnvOrDefault("ANALYZER_LOG_FILE", "logs/analyzer.log"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("config: GEMINI_API_KEY is required")
	}
	if cfg.DailyLimit < 1 {
		cfg.DailyLimit = 1
	}
	if cfg.ModelTimeoutMS < 1000 {
		cfg.ModelTimeoutMS = 1000
	}
	return cfg, nil
}
