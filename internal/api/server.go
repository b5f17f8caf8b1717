// Package api exposes the analyzer service over HTTP: the multipart
// /analyze endpoint the mini-app client talks to, user verification and
// limit lookups, and a live SSE feed of verdicts.
package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/chart_agent/internal/analyze"
	"github.com/dgnsrekt/chart_agent/internal/relay"
	"github.com/dgnsrekt/chart_agent/internal/userstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Analyzer produces a trading signal for one chart image.
type Analyzer interface {
	AnalyzeChart(ctx context.Context, mimeType string, data []byte) (*analyze.Result, error)
}

// UserStore is the verification and limit surface the API needs.
type UserStore interface {
	CheckLimit(ctx context.Context, tgID int64) (userstore.LimitStatus, error)
	IncrementUsage(ctx context.Context, tgID int64) error
	Verify(ctx context.Context, tgID int64, pocketID string) error
	IsVerified(ctx context.Context, tgID int64) (bool, error)
	PocketID(ctx context.Context, tgID int64) (string, error)
	CacheContains(ctx context.Context, pocketID string) (bool, error)
	AddToCache(ctx context.Context, pocketID string) error
}

// NewServer builds the analyzer HTTP handler.
//
// POST /analyze is registered as a raw chi handler rather than a huma
// operation: its error contract is a bare {"detail": ...} JSON body that
// the mini-app client parses and classifies, not an RFC 7807 problem.
func NewServer(an Analyzer, users UserStore, broker *relay.Broker, maxUploadBytes int64) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("AI Chart Analyzer API", "1.0.0")
	api := humachi.New(router, cfg)

	registerMiscHandlers(api)
	registerUserHandlers(api, users)

	router.Post("/analyze", analyzeHandler(an, users, broker, maxUploadBytes))
	router.Get("/api/v1/events", relay.SSEHandler(broker))

	return router
}

func registerMiscHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type rootOutput struct {
		Body struct {
			Name      string   `json:"name"`
			Status    string   `json:"status"`
			Endpoints []string `json:"endpoints"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "root", Method: http.MethodGet, Path: "/", Summary: "Service info", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*rootOutput, error) {
			out := &rootOutput{}
			out.Body.Name = "ai-chart-analyzer-api"
			out.Body.Status = "ok"
			out.Body.Endpoints = []string{
				"/health",
				"/analyze",
				"/api/v1/users/verify",
				"/api/v1/users/{tg_id}/limit",
				"/api/v1/users/{tg_id}/verified",
				"/api/v1/users/{tg_id}/pocket-id",
				"/api/v1/events",
			}
			return out, nil
		})
}
