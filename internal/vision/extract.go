package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
)

// ExtractResult pulls the first JSON object out of model text and
// validates it against the analysis contract. Models occasionally wrap
// the object in prose or code fences despite the prompt.
func ExtractResult(text string) (*analyze.Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("vision: no JSON object in model response")
	}

	var res analyze.Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("vision: decode model JSON: %w", err)
	}

	if !res.Signal.Valid() {
		return nil, fmt.Errorf("vision: invalid signal %q", res.Signal)
	}
	if res.ExpiryMinutes < 1 || res.ExpiryMinutes > 5 {
		return nil, fmt.Errorf("vision: expiry_minutes out of range: %d", res.ExpiryMinutes)
	}
	if n := utf8.RuneCountInString(res.Reasoning); n < 3 || n > 500 {
		return nil, fmt.Errorf("vision: reasoning length out of range: %d", n)
	}
	return &res, nil
}
