package config

import "strconv"

// CaptureConfig holds settings for attaching to a running browser and
// screenshotting a chart tab.
type CaptureConfig struct {
	CDPAddress    string
	CDPPort       int
	TabURLFilter  string
	EvalTimeoutMS int
}

// LoadCapture reads chart capture configuration from environment variables.
func LoadCapture() (*CaptureConfig, error) {
	loadDotenv()

	cfg := &CaptureConfig{
		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:  getEnvOrDefault("CAPTURE_TAB_URL_FILTER", "tradingview.com"),
		EvalTimeoutMS: getEnvIntOrDefault("CAPTURE_TIMEOUT_MS", 15000),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	return cfg, nil
}

// CDPURL returns the browser's CDP HTTP endpoint.
func (c *CaptureConfig) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}
