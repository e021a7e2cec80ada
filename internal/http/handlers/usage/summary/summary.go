// Package summary отдаёт расход токенов текущего пользователя за сутки и за месяц.
package summary

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
)

// Service строит сводку расхода.
type Service interface {
	Summary(ctx context.Context, userID string) (*usage.Summary, error)
}

// Handler обрабатывает GET /api/usage.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary Расход токенов
// @Description Расход за текущие сутки и текущий месяц UTC, лимиты и процент использования.
// @Tags Usage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} usage.Summary
// @Failure 401 {object} response.ErrorResponse
// @Router /usage [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.summary"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok || !id.Authenticated {
		response.WriteError(w, r, log, apperr.Unauthenticated(apperr.CodeMissingToken, "missing authorization token"))
		return
	}

	s, err := h.svc.Summary(r.Context(), id.UserID)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusOK, s)
}
