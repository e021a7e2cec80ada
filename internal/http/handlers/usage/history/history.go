// Package history отдаёт последние записи журнала расхода пользователя.
package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
)

// Service читает журнал расхода.
type Service interface {
	History(ctx context.Context, userID string, limit int) ([]models.UsageLogEntry, error)
}

// Handler обрабатывает GET /api/usage/history?limit=N.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary История расхода
// @Description Последние записи, новые первыми. limit приводится к [1, 200], по умолчанию 50.
// @Tags Usage
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Число записей"
// @Success 200 {object} map[string][]models.UsageLogEntry
// @Failure 401 {object} response.ErrorResponse
// @Router /usage/history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.history"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok || !id.Authenticated {
		response.WriteError(w, r, log, apperr.Unauthenticated(apperr.CodeMissingToken, "missing authorization token"))
		return
	}

	// Отсутствующий или нечисловой limit даёт значение по умолчанию.
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = usage.DefaultHistoryLimit
	}

	entries, err := h.svc.History(r.Context(), id.UserID, limit)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"history": entries})
}
