package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgnsrekt/chart_agent/internal/relay"
)

// Displayable detail strings; the mini-app client classifies these by
// substring, so they are part of the service contract.
const (
	detailImageRequired = "Требуется файл изображения"
	detailEmptyFile     = "Пустой файл"
	detailBadTgID       = "Некорректный идентификатор пользователя"
	detailUserNotFound  = "Пользователь не найден"
	detailLimitReached  = "Лимит исчерпан"
	detailModelFailure  = "Ошибка обращения к модели"
	detailInternal      = "Внутренняя ошибка сервера"
)

func analyzeHandler(an Analyzer, users UserStore, broker *relay.Broker, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			writeDetail(w, http.StatusBadRequest, detailImageRequired)
			return
		}
		defer func() {
			_ = file.Close()
		}()

		mimeType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			writeDetail(w, http.StatusBadRequest, detailImageRequired)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil || len(data) == 0 {
			writeDetail(w, http.StatusBadRequest, detailEmptyFile)
			return
		}

		tgID, err := strconv.ParseInt(r.FormValue("tg_id"), 10, 64)
		if err != nil || tgID == 0 {
			writeDetail(w, http.StatusBadRequest, detailBadTgID)
			return
		}

		status, err := users.CheckLimit(ctx, tgID)
		if err != nil {
			slog.Error("limit check failed", "tg_id", tgID, "error", err)
			writeDetail(w, http.StatusInternalServerError, detailInternal)
			return
		}
		if !status.Known {
			writeDetail(w, http.StatusForbidden, detailUserNotFound)
			return
		}
		if !status.Allowed {
			writeDetail(w, http.StatusTooManyRequests, detailLimitReached)
			return
		}

		result, err := an.AnalyzeChart(ctx, mimeType, data)
		if err != nil {
			slog.Error("model analysis failed", "tg_id", tgID, "error", err)
			writeDetail(w, http.StatusBadGateway, detailModelFailure)
			return
		}

		// The counter moves only after a successful analysis.
		if err := users.IncrementUsage(ctx, tgID); err != nil {
			slog.Error("usage increment failed", "tg_id", tgID, "error", err)
		}
		remaining := status.Remaining - 1
		if remaining < 0 {
			remaining = 0
		}
		result.RemainingLimit = &remaining

		broker.Publish(relay.AnalysisCompleted(tgID, result))

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Debug("analysis response write failed", "error", err)
		}
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		slog.Debug("detail response write failed", "error", err)
	}
}
