// Package report отдаёт администратору сводку расхода по системе и пользователям.
package report

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/services/usage"
)

// Service строит отчёт.
type Service interface {
	AdminReport(ctx context.Context) (*usage.AdminReport, error)
}

// Handler обрабатывает GET /api/admin/usage.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary Отчёт о расходе
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} usage.AdminReport
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /admin/usage [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.report"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	rep, err := h.svc.AdminReport(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusOK, rep)
}
