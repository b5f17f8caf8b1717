// Package vision asks a Gemini vision model for a trading signal on one
// chart image.
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const analysisPrompt = "Ты опытный финансовый трейдер с 20-летним стажем технического анализа. " +
	"Посмотри на этот график.\n" +
	"1. Определи текущий тренд.\n" +
	"2. Найди ключевые уровни поддержки и сопротивления.\n" +
	"3. Найди свечные паттерны.\n" +
	"4. Дай четкий сигнал: ВВЕРХ (LONG) или ВНИЗ (SHORT).\n" +
	"5. Укажи экспирацию входа в сделку (1-5 минут).\n" +
	"6. Напиши краткое обоснование (максимум 3-4 предложения).\n" +
	"Верни чистый JSON без Markdown, только объект " +
	`{"signal":"LONG|SHORT|NEUTRAL","expiry_minutes":1,"reasoning":"текст обоснования"} ` +
	"с двойными кавычками и без текста вокруг."

// Model wraps a Gemini generative model for chart analysis.
type Model struct {
	client  *genai.Client
	name    string
	timeout time.Duration
}

// New creates a Model using the given API key and model name.
func New(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Model, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("vision: init client: %w", err)
	}
	return &Model{client: client, name: modelName, timeout: timeout}, nil
}

// Close releases the underlying client.
func (m *Model) Close() error {
	return m.client.Close()
}

// AnalyzeChart sends the image to the model and decodes the JSON verdict.
func (m *Model) AnalyzeChart(ctx context.Context, mimeType string, data []byte) (*analyze.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	format := strings.TrimPrefix(mimeType, "image/")
	model := m.client.GenerativeModel(m.name)

	resp, err := model.GenerateContent(ctx,
		genai.Text(analysisPrompt),
		genai.ImageData(format, data),
	)
	if err != nil {
		return nil, fmt.Errorf("vision: generate: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("vision: empty response from model")
	}
	return ExtractResult(text)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
