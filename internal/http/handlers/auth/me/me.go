// Package me отдаёт текущего пользователя.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/manuscript-editor/internal/http/middlewarectx"
	"github.com/magabrotheeeer/manuscript-editor/internal/http/response"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// Service отдаёт санитизированного пользователя.
type Service interface {
	Me(ctx context.Context, userID string) (*models.PublicUser, error)
}

// Handler обрабатывает GET /api/auth/me.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary Текущий пользователь
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]models.PublicUser
// @Failure 401 {object} response.ErrorResponse
// @Router /auth/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.me"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok || !id.Authenticated {
		response.WriteError(w, r, log, apperr.Unauthenticated(apperr.CodeMissingToken, "missing authorization token"))
		return
	}

	user, err := h.svc.Me(r.Context(), id.UserID)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user": user})
}
